package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grievance-api/internal/models"
)

func attachmentColumns() []string {
	return []string{"id", "grievance_id", "file_name", "stored_path", "mime_type", "size_bytes", "uploaded_by", "uploaded_at", "deleted_at"}
}

func TestAttachmentRepositoryInsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttachmentRepository(db)

	mock.ExpectExec(`INSERT INTO attachments`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := &models.Attachment{
		FileName:   "notes.pdf",
		StoredPath: "2026/08/att-1.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  1024,
		UploadedBy: "roll-1001",
	}
	err := repo.Insert(context.Background(), a)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.UploadedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryClaim(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttachmentRepository(db)

	query := regexp.QuoteMeta(`UPDATE attachments SET grievance_id = $1
	WHERE id = $2 AND grievance_id IS NULL AND uploaded_by = $3 AND deleted_at IS NULL`)

	mock.ExpectExec(query).
		WithArgs("grv-1", "att-1", "roll-1001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Claim(context.Background(), "att-1", "grv-1", "roll-1001")
	require.NoError(t, err)
	assert.True(t, ok)

	// Precondition gone: already claimed, deleted, or foreign uploader. The
	// update touches nothing and the caller gets false, not an error.
	mock.ExpectExec(query).
		WithArgs("grv-2", "att-1", "roll-1001").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.Claim(context.Background(), "att-1", "grv-2", "roll-1001")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryGetManyByIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttachmentRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(attachmentColumns()).
		AddRow("att-1", nil, "a.pdf", "2026/08/att-1.pdf", "application/pdf", int64(10), "roll-1001", now, nil).
		AddRow("att-2", "grv-9", "b.pdf", "2026/08/att-2.pdf", "application/pdf", int64(20), "roll-1001", now, nil)

	mock.ExpectQuery(`SELECT (.+) FROM attachments WHERE id = ANY`).
		WillReturnRows(rows)

	attachments, err := repo.GetManyByIDs(context.Background(), []string{"att-1", "att-2", "att-ghost"})
	require.NoError(t, err)
	require.Len(t, attachments, 2)
	assert.False(t, attachments[0].Claimed())
	assert.True(t, attachments[1].Claimed())

	// Empty input never hits the database.
	attachments, err = repo.GetManyByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, attachments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryListExpiredUnclaimed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttachmentRepository(db)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	rows := sqlmock.NewRows(attachmentColumns()).
		AddRow("att-old", nil, "old.pdf", "2026/08/att-old.pdf", "application/pdf", int64(10), "roll-1001", cutoff.Add(-time.Hour), nil)

	mock.ExpectQuery(`SELECT (.+) FROM attachments WHERE grievance_id IS NULL AND deleted_at IS NULL AND uploaded_at < \$1`).
		WithArgs(cutoff).
		WillReturnRows(rows)

	attachments, err := repo.ListExpiredUnclaimed(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "att-old", attachments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryDeleteIfUnclaimed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttachmentRepository(db)

	query := regexp.QuoteMeta(`DELETE FROM attachments WHERE id = $1 AND grievance_id IS NULL`)

	mock.ExpectExec(query).
		WithArgs("att-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.DeleteIfUnclaimed(context.Background(), "att-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// A claim won the race: the guarded delete is a no-op.
	mock.ExpectExec(query).
		WithArgs("att-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.DeleteIfUnclaimed(context.Background(), "att-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grievance-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func statusPtr(s models.GrievanceStatus) *models.GrievanceStatus { return &s }

func trackingColumns() []string {
	return []string{"id", "grievance_id", "from_status", "to_status", "actor_id", "note", "redirect_target", "is_redirect", "is_override", "created_at"}
}

func TestTrackingRepositoryAppend(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrackingRepository(db)

	entry := &models.TrackingEntry{
		GrievanceID: "grv-1",
		FromStatus:  statusPtr(models.StatusSubmitted),
		ToStatus:    models.StatusInProgress,
		ActorID:     "admin-1",
		Note:        "picked up",
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE grievances SET status = $1, updated_at = $2, current_category = COALESCE($3, current_category)
	WHERE id = $4 AND status = $5`)).
		WithArgs(models.StatusInProgress, sqlmock.AnyArg(), nil, "grv-1", models.StatusSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tracking_entries`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingRepositoryAppendRedirectAdvancesQueue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrackingRepository(db)

	target := models.CategoryAcademic
	entry := &models.TrackingEntry{
		GrievanceID:    "grv-1",
		FromStatus:     statusPtr(models.StatusInProgress),
		ToStatus:       models.StatusRedirected,
		ActorID:        "ca-1",
		RedirectTarget: &target,
		IsRedirect:     true,
	}

	// A redirect moves queue ownership in the same transaction as the append.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE grievances SET status`).
		WithArgs(models.StatusRedirected, sqlmock.AnyArg(), &target, "grv-1", models.StatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO tracking_entries`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingRepositoryAppendStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrackingRepository(db)

	entry := &models.TrackingEntry{
		GrievanceID: "grv-1",
		FromStatus:  statusPtr(models.StatusSubmitted),
		ToStatus:    models.StatusResolved,
		ActorID:     "admin-1",
	}

	// Another admin advanced the grievance first: the conditional update
	// matches nothing, but the row itself still exists.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE grievances SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM grievances WHERE id = $1)`)).
		WithArgs("grv-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Append(context.Background(), entry)
	assert.ErrorIs(t, err, ErrStaleAppend)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingRepositoryAppendMissingGrievance(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrackingRepository(db)

	entry := &models.TrackingEntry{
		GrievanceID: "grv-missing",
		FromStatus:  statusPtr(models.StatusSubmitted),
		ToStatus:    models.StatusResolved,
		ActorID:     "admin-1",
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE grievances SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("grv-missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.Append(context.Background(), entry)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingRepositoryAppendRequiresFromStatus(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewTrackingRepository(db)

	err := repo.Append(context.Background(), &models.TrackingEntry{
		GrievanceID: "grv-1",
		ToStatus:    models.StatusResolved,
	})
	assert.Error(t, err)
}

func TestTrackingRepositoryHistory(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrackingRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(trackingColumns()).
		AddRow("te-1", "grv-1", nil, models.StatusSubmitted, models.SystemActor, "", nil, false, false, now.Add(-time.Hour)).
		AddRow("te-2", "grv-1", models.StatusSubmitted, models.StatusRedirected, "admin-1", "wrong queue", models.CategoryExam, true, false, now)

	mock.ExpectQuery(`SELECT (.+) FROM tracking_entries WHERE grievance_id = \$1 ORDER BY created_at ASC`).
		WithArgs("grv-1").
		WillReturnRows(rows)

	entries, err := repo.History(context.Background(), "grv-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].FromStatus)
	assert.Equal(t, models.SystemActor, entries[0].ActorID)
	assert.True(t, entries[1].IsRedirect)
	require.NotNil(t, entries[1].RedirectTarget)
	assert.Equal(t, models.CategoryExam, *entries[1].RedirectTarget)
	assert.NoError(t, mock.ExpectationsWereMet())
}

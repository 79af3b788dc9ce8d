package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grievance-api/internal/dto"
	"github.com/noah-isme/grievance-api/internal/models"
	"github.com/noah-isme/grievance-api/internal/service"
	appErrors "github.com/noah-isme/grievance-api/pkg/errors"
	"github.com/noah-isme/grievance-api/pkg/response"
)

type attachmentService interface {
	Upload(ctx context.Context, in service.UploadInput, uploaderID string) (*models.Attachment, error)
	DownloadLink(ctx context.Context, attachmentID string) (*dto.DownloadLink, error)
	OpenByToken(token string) (*os.File, error)
	SweepExpired(ctx context.Context) (int, error)
}

// AttachmentHandler exposes upload and download endpoints.
type AttachmentHandler struct {
	service attachmentService
}

// NewAttachmentHandler constructs the handler.
func NewAttachmentHandler(service attachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Upload accepts a multipart file and records it as an unclaimed attachment.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file field required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unreadable upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	attachment, err := h.service.Upload(c.Request.Context(), service.UploadInput{
		FileName:  fileHeader.Filename,
		MimeType:  fileHeader.Header.Get("Content-Type"),
		SizeBytes: fileHeader.Size,
		Content:   file,
	}, claims.ActorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// Link issues a signed, expiring download token for an attachment.
func (h *AttachmentHandler) Link(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	link, err := h.service.DownloadLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download streams a blob referenced by a valid signed token.
func (h *AttachmentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	file, err := h.service.OpenByToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat blob"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}

// Sweep triggers a retention sweep of unclaimed attachments on demand.
func (h *AttachmentHandler) Sweep(c *gin.Context) {
	deleted, err := h.service.SweepExpired(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SweepResult{Deleted: deleted}, nil)
}

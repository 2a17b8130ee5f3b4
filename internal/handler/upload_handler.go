package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	"github.com/noah-isme/marksheet-ocr-api/internal/service"
	appErrors "github.com/noah-isme/marksheet-ocr-api/pkg/errors"
	"github.com/noah-isme/marksheet-ocr-api/pkg/response"
)

// imageField is the multipart field carrying marksheet images.
const imageField = "image"

type marksheetService interface {
	ProcessBatch(ctx context.Context, files []service.UploadFile) (*dto.UploadResponse, error)
	Get(ctx context.Context, id string) (*dto.UploadDetail, error)
	List(ctx context.Context, limit int) ([]models.UploadBatch, error)
	Delete(ctx context.Context, id string) error
}

type exportService interface {
	Export(ctx context.Context, id string, shape service.ExportShape, format service.ExportFormat) (*service.ExportFile, error)
}

// UploadHandler exposes marksheet upload endpoints.
type UploadHandler struct {
	marksheets marksheetService
	exports    exportService
}

// NewUploadHandler constructs UploadHandler.
func NewUploadHandler(marksheets marksheetService, exports exportService) *UploadHandler {
	return &UploadHandler{marksheets: marksheets, exports: exports}
}

// Create godoc
// @Summary Upload marksheet images
// @Description Each image is stored, read by the vision model and saved synchronously.
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Marksheet image (repeat for several files)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Create(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart form with image files is required"))
		return
	}

	headers := form.File[imageField]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadFileFrom(fh))
	}

	result, err := h.marksheets.ProcessBatch(c.Request.Context(), files)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if result.SuccessCount == 0 {
		status = http.StatusUnprocessableEntity
	}
	response.JSON(c, status, result, nil)
}

func uploadFileFrom(fh *multipart.FileHeader) service.UploadFile {
	return service.UploadFile{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// List godoc
// @Summary List recent uploads
// @Tags Uploads
// @Produce json
// @Param limit query int false "Number of uploads (default 10, max 100)"
// @Success 200 {object} response.Envelope
// @Router /uploads [get]
func (h *UploadHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = v
	}

	uploads, err := h.marksheets.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, uploads, nil)
}

// Get godoc
// @Summary Get upload results
// @Tags Uploads
// @Produce json
// @Param id path string true "Upload ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /uploads/{id} [get]
func (h *UploadHandler) Get(c *gin.Context) {
	id, ok := uploadID(c)
	if !ok {
		return
	}
	detail, err := h.marksheets.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Delete upload
// @Tags Uploads
// @Security BearerAuth
// @Param id path string true "Upload ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /uploads/{id} [delete]
func (h *UploadHandler) Delete(c *gin.Context) {
	id, ok := uploadID(c)
	if !ok {
		return
	}
	if err := h.marksheets.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Download upload results
// @Description file is {summary|detailed}.{csv|xlsx|pdf}
// @Tags Uploads
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce application/pdf
// @Param id path string true "Upload ID"
// @Param file path string true "Export file, e.g. summary.csv"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /uploads/{id}/export/{file} [get]
func (h *UploadHandler) Export(c *gin.Context) {
	id, ok := uploadID(c)
	if !ok {
		return
	}
	rawShape, rawFormat, found := strings.Cut(c.Param("file"), ".")
	if !found {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "export file must look like summary.csv"))
		return
	}
	shape, err := service.ParseExportShape(strings.ToLower(rawShape))
	if err != nil {
		response.Error(c, err)
		return
	}
	format, err := service.ParseExportFormat(strings.ToLower(rawFormat))
	if err != nil {
		response.Error(c, err)
		return
	}

	file, err := h.exports.Export(c.Request.Context(), id, shape, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

// uploadID rejects ids that cannot match a stored upload before any query.
func uploadID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "upload not found"))
		return "", false
	}
	return id, true
}

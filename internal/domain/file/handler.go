package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"filedock/internal/pkg/response"
)

const (
	formField        = "files"
	multipartSlack   = 1 << 20
	defaultUploadTTL = 2 * time.Minute
)

type HandlerOptions struct {
	// MaxFiles caps the number of files in one upload request.
	MaxFiles int
	// UploadTimeout bounds the whole upload request.
	UploadTimeout time.Duration
}

// Handler maps the HTTP API onto Service.
type Handler struct {
	service       *Service
	maxFiles      int
	uploadTimeout time.Duration
}

func NewHandler(service *Service, opts HandlerOptions) *Handler {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultBatchSize
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = defaultUploadTTL
	}
	return &Handler{service: service, maxFiles: opts.MaxFiles, uploadTimeout: opts.UploadTimeout}
}

// List godoc
// @Summary List uploaded files, newest first
// @Tags Files
// @Produce json
// @Success 200 {array} FileResponse
// @Failure 500 {object} map[string]string
// @Router /api/files [get]
func (h *Handler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to fetch files")
		return
	}

	out := make([]FileResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toFileResponse(it))
	}
	c.JSON(http.StatusOK, out)
}

// Upload godoc
// @Summary Upload one or more files
// @Description Multipart field "files", repeated. Each file is capped by the configured size limit.
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files to upload"
// @Success 200 {object} UploadResponse
// @Failure 400,408,500 {object} map[string]string
// @Router /api/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.uploadTimeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	// Not every writer supports deadlines (e.g. httptest); the context still applies.
	_ = http.NewResponseController(c.Writer).SetReadDeadline(deadline)

	limit := h.service.MaxFileSize()*int64(h.maxFiles) + multipartSlack
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "No files uploaded")
		return
	}

	src := &multipartSource{ctx: ctx, reader: mr, maxFiles: h.maxFiles}
	result, err := h.service.UploadBatch(ctx, src)
	if err != nil {
		h.fail(c, err, "Upload failed")
		return
	}

	for _, f := range result.Failed {
		_ = c.Error(f.Err)
	}
	c.JSON(http.StatusOK, toUploadResponse(result, h.failureMessage))
}

// Delete godoc
// @Summary Delete a file (blob and record)
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} map[string]string
// @Failure 404,500 {object} map[string]string
// @Router /api/files/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "Error deleting file")
		return
	}
	response.Message(c, http.StatusOK, "File deleted successfully")
}

// Download godoc
// @Summary Download a file under its original name
// @Tags Files
// @Produce octet-stream
// @Param id path string true "File ID"
// @Success 200 {file} binary
// @Failure 404,500 {object} map[string]string
// @Router /api/files/{id}/download [get]
func (h *Handler) Download(c *gin.Context) {
	d, err := h.service.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Download failed")
		return
	}
	defer d.Content.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": d.File.OriginalName})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition)
	http.ServeContent(c.Writer, c.Request, d.File.OriginalName, d.ModTime, d.Content)
}

// fail maps coordinator errors onto status codes. Unclassified errors get
// the operation's generic message; the cause goes to the error log only.
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	status, msg := h.classify(err, fallback)
	response.Error(c, status, msg)
}

func (h *Handler) classify(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "File not found"
	case errors.Is(err, ErrBlobMissing):
		return http.StatusNotFound, "File content is missing"
	case errors.Is(err, ErrNoFiles):
		return http.StatusBadRequest, "No files uploaded"
	case errors.Is(err, ErrTooLarge):
		return http.StatusBadRequest, fmt.Sprintf("File exceeds the %d byte limit", h.service.MaxFileSize())
	case errors.Is(err, ErrTooManyFiles):
		return http.StatusBadRequest, fmt.Sprintf("At most %d files per upload", h.maxFiles)
	case errors.Is(err, ErrMalformedUpload):
		return http.StatusBadRequest, "Malformed multipart upload"
	case errors.Is(err, ErrUploadTimeout):
		return http.StatusRequestTimeout, "Upload timed out"
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusInternalServerError, fallback + ": metadata store unavailable"
	default:
		return http.StatusInternalServerError, fallback
	}
}

func (h *Handler) failureMessage(err error) string {
	_, msg := h.classify(err, "Upload failed")
	return msg
}

// multipartSource streams the "files" parts of a request body. Other form
// fields and non-file parts are skipped.
type multipartSource struct {
	ctx      context.Context
	reader   *multipart.Reader
	maxFiles int
	count    int
}

func (m *multipartSource) NextPart() (*Part, error) {
	for {
		p, err := m.reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, m.streamError(err)
		}
		if p.FormName() != formField || p.FileName() == "" {
			continue
		}

		m.count++
		if m.count > m.maxFiles {
			return nil, fmt.Errorf("%w: more than %d", ErrTooManyFiles, m.maxFiles)
		}
		return &Part{Name: p.FileName(), Reader: &partReader{src: m, r: p}}, nil
	}
}

func (m *multipartSource) streamError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return fmt.Errorf("%w: %w", ErrTooLarge, err)
	case m.ctx.Err() != nil, errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUploadTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrMalformedUpload, err)
}

// partReader classifies read errors of one file part the same way as
// errors between parts.
type partReader struct {
	src *multipartSource
	r   io.Reader
}

func (p *partReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err != nil && err != io.EOF {
		err = p.src.streamError(err)
	}
	return n, err
}

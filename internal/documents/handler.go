package documents

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"dms-backend/internal/shared/server/middleware"
	"dms-backend/internal/shared/server/respond"
	"dms-backend/internal/shared/telemetry"
)

const (
	defaultMaxUploadBytes = 20 << 20
	maxListLimit          = 100
	audioChunkSize        = 32 << 10
)

var allowedExtensions = map[string]bool{".pdf": true, ".docx": true}

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.upload)
	rg.GET("", h.list)
	rg.GET("/:id", h.get)
	rg.DELETE("/:id", h.delete)
}

// RegisterAudioRoute is mounted separately so it can carry a longer deadline.
func (h *Handler) RegisterAudioRoute(rg *gin.RouterGroup) {
	rg.GET("/:id/audio", h.audio)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodePayloadTooLarge, "Upload exceeds the size limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "No files uploaded", nil)
		return
	}
	defer func() {
		if err := form.RemoveAll(); err != nil {
			telemetry.Warn("documents.upload.cleanup_failed", map[string]any{
				"request_id": middleware.RequestIDFromContext(c),
				"err":        err,
			})
		}
	}()

	headers := make([]*multipart.FileHeader, 0, len(form.File["files"])+len(form.File["files[]"]))
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["files[]"]...)
	if len(headers) == 0 {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "No files uploaded", nil)
		return
	}
	for _, fh := range headers {
		if !allowedExtensions[strings.ToLower(filepath.Ext(fh.Filename))] {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "Only PDF and DOCX files are allowed", gin.H{"file": fh.Filename})
			return
		}
	}
	c.Set("uploadFiles", len(headers))

	files := make([]UploadedFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, fromFileHeader(fh))
	}

	res, err := h.Svc.Upload(c.Request.Context(), UploadRequest{
		UserID:    userID,
		RequestID: middleware.RequestIDFromContext(c),
		Files:     files,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "No files uploaded", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Failed to upload files", nil)
		return
	}

	respond.Created(c, toUploadResponse(res))
}

func fromFileHeader(fh *multipart.FileHeader) UploadedFile {
	return UploadedFile{
		Name:     filepath.Base(fh.Filename),
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	opts := ListOptions{Query: strings.TrimSpace(c.Query("q"))}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		opts.Limit = min(v, maxListLimit)
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		opts.Offset = v
	}

	docs, err := h.Svc.List(c.Request.Context(), userID, opts)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Failed to fetch documents", nil)
		return
	}
	respond.OK(c, docs)
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set("documentId", id)

	doc, err := h.Svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "Document not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Failed to fetch document", nil)
		return
	}
	respond.OK(c, doc)
}

func (h *Handler) delete(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set("documentId", id)

	err := h.Svc.Delete(c.Request.Context(), userID, id, middleware.RequestIDFromContext(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "Document not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Failed to delete document", nil)
		return
	}
	respond.Message(c, http.StatusOK, "Document deleted successfully")
}

func (h *Handler) audio(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set("documentId", id)

	stream, err := h.Svc.Audio(c.Request.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "Document not found", nil)
		case errors.Is(err, ErrNoText):
			respond.Error(c, http.StatusNotFound, respond.CodeNoText, "Document not found or no text available", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Failed to convert text to speech", nil)
		}
		return
	}
	defer stream.Close()

	// Headers are committed only once the first audio bytes arrive.
	buf := make([]byte, audioChunkSize)
	n, err := io.ReadAtLeast(stream, buf, 1)
	if n == 0 {
		telemetry.Error("documents.audio.synthesis_failed", map[string]any{
			"request_id":  middleware.RequestIDFromContext(c),
			"document_id": id,
			"err":         err,
		})
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Failed to convert text to speech", nil)
		return
	}

	c.Header("Content-Type", "audio/mpeg")
	c.Header("Content-Disposition", `inline; filename="document-`+id+`.mp3"`)
	c.Status(http.StatusOK)
	if _, err := c.Writer.Write(buf[:n]); err != nil {
		return
	}
	if _, err := io.CopyBuffer(c.Writer, stream, buf); err != nil {
		telemetry.Warn("documents.audio.stream_interrupted", map[string]any{
			"request_id":  middleware.RequestIDFromContext(c),
			"document_id": id,
			"err":         err,
		})
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

const (
	uploadFormField     = "file"
	multipartMemoryBase = 32 << 20
)

type Router struct {
	cfg       config.Config
	submitter ports.DocumentSubmitter
	uploads   ports.UploadStatusReader
	docs      ports.DocumentReader
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
}

func NewRouter(
	cfg config.Config,
	submitter ports.DocumentSubmitter,
	uploads ports.UploadStatusReader,
	docs ports.DocumentReader,
) *Router {
	return &Router{
		cfg:       cfg,
		submitter: submitter,
		uploads:   uploads,
		docs:      docs,
		logger:    slog.Default(),
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) WithLogger(logger *slog.Logger) *Router {
	if logger != nil {
		rt.logger = logger
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	upload := backpressureMiddleware(http.HandlerFunc(rt.uploadDocuments), rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait)
	api.Handle("POST /v1/documents", upload)
	api.HandleFunc("GET /v1/documents", rt.listDocuments)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	api.HandleFunc("GET /v1/documents/{id}/content", rt.getDocumentContent)
	api.HandleFunc("GET /v1/uploads", rt.listUploads)
	api.HandleFunc("GET /v1/uploads/events", rt.streamUploadEvents)
	api.HandleFunc("GET /v1/uploads/{id}", rt.getUpload)

	var v1 http.Handler = api
	v1 = bearerAuthMiddleware(v1, rt.cfg.APIAuthToken)
	v1 = rateLimitMiddleware(v1, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", v1)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxRequestBytes > 0 {
		if r.ContentLength > rt.cfg.MaxRequestBytes {
			writeError(w, &http.MaxBytesError{Limit: rt.cfg.MaxRequestBytes})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxRequestBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryBase); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File[uploadFormField]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}

	files := make([]domain.UploadedFile, 0, len(headers))
	for _, header := range headers {
		file, err := rt.readUpload(header)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("read %s: %v", header.Filename, err)})
			return
		}
		files = append(files, file)
	}

	if rt.metrics != nil {
		rt.metrics.RecordUpload(len(files))
	}
	statuses := rt.submitter.Submit(r.Context(), files)
	writeJSON(w, http.StatusAccepted, map[string]any{"uploads": statuses})
}

// readUpload skips reading parts that already declare more than the upload
// limit; the validator rejects them on DeclaredSize alone.
func (rt *Router) readUpload(header *multipart.FileHeader) (domain.UploadedFile, error) {
	file := domain.UploadedFile{
		Filename:         header.Filename,
		DeclaredMimeType: header.Header.Get("Content-Type"),
		DeclaredSize:     header.Size,
	}
	if rt.cfg.MaxUploadBytes > 0 && header.Size > rt.cfg.MaxUploadBytes {
		return file, nil
	}

	f, err := header.Open()
	if err != nil {
		return file, err
	}
	defer f.Close()

	var src io.Reader = f
	if rt.cfg.MaxUploadBytes > 0 {
		src = io.LimitReader(f, rt.cfg.MaxUploadBytes+1)
	}
	content, err := io.ReadAll(src)
	if err != nil {
		return file, err
	}
	file.Content = content
	return file, nil
}

func (rt *Router) listUploads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"uploads": rt.uploads.Statuses()})
}

func (rt *Router) getUpload(w http.ResponseWriter, r *http.Request) {
	status, ok := rt.uploads.Status(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "upload not found"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.DocumentFilter{Status: domain.DocumentStatus(strings.TrimSpace(query.Get("status")))}

	var err error
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		return
	}
	if filter.Offset, err = intParam(query.Get("offset")); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be an integer"})
		return
	}

	docs, err := rt.docs.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.docs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getDocumentContent(w http.ResponseWriter, r *http.Request) {
	doc, content, err := rt.docs.OpenContent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer content.Close()

	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	if doc.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		rt.logger.Warn("document_content_copy_failed", "document_id", doc.ID, "error", err)
	}
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dropgate/dropgate/internal/retention"
	"github.com/dropgate/dropgate/internal/transfer"
	"github.com/dropgate/dropgate/pkg/logging"
	"github.com/dropgate/dropgate/pkg/metrics"
)

// Server exposes the storage core over HTTP: uploads, downloads and the
// operational endpoints (health, statistics, manual cleanup, metrics).
type Server struct {
	coordinator *transfer.Coordinator
	sweeper     *retention.Sweeper
	baseURL     string
	httpServer  *http.Server
}

// New builds the router and the underlying http.Server listening on port.
func New(coordinator *transfer.Coordinator, sweeper *retention.Sweeper, baseURL string, port int) *Server {
	s := &Server{
		coordinator: coordinator,
		sweeper:     sweeper,
		baseURL:     baseURL,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Post("/upload", s.handleUpload)
	r.Get("/download/{id}", s.handleDownload)
	r.Get("/statistics", s.handleStatistics)
	r.Get("/health", s.handleHealth)
	r.Post("/cleanup", s.handleCleanup)
	r.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	logging.Log.WithField("addr", s.httpServer.Addr).Info("HTTP server starting")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"service": "dropgate",
		"status":  "running",
		"endpoints": map[string]string{
			"upload":     "/upload",
			"download":   "/download/{id}",
			"statistics": "/statistics",
			"health":     "/health",
			"cleanup":    "/cleanup",
			"metrics":    "/metrics",
		},
	})
}

// handleUpload ingests the request body as one object. The submitter identity
// comes from the X-Owner-ID header (or owner query parameter) and the display
// name from the filename query parameter. Content-Length, when the client
// sends one, is the declared size checked before any bytes are read.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get("X-Owner-ID")
	if owner == "" {
		owner = r.URL.Query().Get("owner")
	}
	if owner == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "Missing owner identity")
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload.bin"
	}

	id, err := s.coordinator.Ingest(r.Context(), owner, filename, r.Body, r.ContentLength)
	if err != nil {
		s.writeTransferError(w, err)
		return
	}

	WriteJSONResponse(w, http.StatusCreated, UploadResponse{
		ID:  id,
		URL: fmt.Sprintf("%s/download/%s", s.baseURL, id),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	stream, rec, err := s.coordinator.Retrieve(chi.URLParam(r, "id"))
	if err != nil {
		s.writeTransferError(w, err)
		return
	}
	defer stream.Close()

	contentType := rec.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": rec.OriginalName}))

	if _, err := io.Copy(w, stream); err != nil {
		// Headers are gone; all that is left is to log the broken transfer.
		logging.Log.WithError(err).WithField("id", rec.ID).Warn("download interrupted")
	}
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coordinator.Stats()
	if err != nil {
		s.writeTransferError(w, err)
		return
	}
	WriteJSONResponse(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coordinator.Stats()
	if err != nil {
		WriteErrorResponse(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	WriteJSONResponse(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		TotalObjects:   stats.TotalObjects,
		TotalSize:      humanize.Bytes(uint64(stats.TotalBytes)),
		AvailableSpace: humanize.Bytes(stats.AvailableBytes),
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.sweeper.Sweep()
	if err != nil {
		WriteErrorResponse(w, http.StatusInternalServerError, "Cleanup failed, try again")
		return
	}
	WriteJSONResponse(w, http.StatusOK, CleanupResponse{DeletedCount: deleted})
}

// writeTransferError maps the coordinator's error taxonomy onto HTTP status
// codes. Storage and conflict failures stay generic here; the detail is
// already in the server logs.
func (s *Server) writeTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transfer.ErrInvalidID):
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid file ID format")
	case errors.Is(err, transfer.ErrNotFound):
		WriteErrorResponse(w, http.StatusNotFound, "File not found or expired")
	case errors.Is(err, transfer.ErrTooLarge):
		WriteErrorResponse(w, http.StatusRequestEntityTooLarge, "File exceeds the maximum allowed size")
	case errors.Is(err, transfer.ErrRateLimited):
		WriteErrorResponse(w, http.StatusTooManyRequests, "Too many uploads, try again later")
	default:
		WriteErrorResponse(w, http.StatusInternalServerError, "Could not process request, try again")
	}
}

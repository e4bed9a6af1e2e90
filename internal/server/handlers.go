package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/coincount/internal/detector"
	"github.com/MeKo-Tech/coincount/internal/fetch"
	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/MeKo-Tech/coincount/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// configHandler reports the effective segmentation parameters.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Counting pipeline not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Info())
}

// processImageHandler downloads the image named in the JSON body, counts it and
// returns the count with the annotated image as base64 JPEG.
func (s *Server) processImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Counting pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	var req ProcessImageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid JSON body", http.StatusUnprocessableEntity)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		s.writeErrorResponse(w, "Field 'url' is required", http.StatusUnprocessableEntity)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	res, err := s.pipeline.ProcessURL(ctx, req.URL)
	if err != nil {
		observeFailure(sourceURL)
		var te *fetch.TransportError
		if errors.As(err, &te) {
			slog.Warn("Image download failed", "url", req.URL, "error", err)
			s.writeErrorResponse(w, "Failed to download image", http.StatusBadRequest)
			return
		}
		s.writeProcessingError(w, err)
		return
	}
	observeCount(sourceURL, res, time.Since(start))

	encoded, err := pipeline.AnnotatedBase64(res, "jpeg", s.baseConfig.JPEGQuality)
	if err != nil {
		s.writeProcessingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessImageResponse{ObjectCount: res.ObjectCount, ProcessedImage: encoded})
}

// requestContext bounds a request by server.timeout_sec.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeoutSec <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
}

// statusForError maps pipeline errors to HTTP status codes.
func statusForError(err error) int {
	var (
		rle *RateLimitError
		qe  *QuotaExceededError
		te  *fetch.TransportError
		ipe *utils.ImageProcessingError
	)
	switch {
	case errors.As(err, &rle), errors.As(err, &qe):
		return http.StatusTooManyRequests
	case errors.Is(err, detector.ErrInvalidInput), errors.Is(err, detector.ErrInvalidConfig):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ipe), errors.As(err, &te):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeProcessingError logs err and writes it with its mapped status.
func (s *Server) writeProcessingError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Counting failed", "error", err)
	} else {
		slog.Debug("Counting rejected", "status", status, "error", err)
	}
	s.writeErrorResponse(w, err.Error(), status)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

package server

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/coincount/internal/detector"
	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/MeKo-Tech/coincount/internal/utils"
)

const (
	formatJSON  = "json"
	formatText  = "text"
	formatCSV   = "csv"
	formatImage = "image"
)

// RequestConfig holds per-request overrides of the server pipeline.
type RequestConfig struct {
	AreaMin      *float64
	AreaMax      *float64
	EllipseColor *color.RGBA
	TextColor    *color.RGBA
}

// IsEmpty reports whether the request overrides nothing.
func (rc *RequestConfig) IsEmpty() bool {
	return rc == nil || (rc.AreaMin == nil && rc.AreaMax == nil && rc.EllipseColor == nil && rc.TextColor == nil)
}

// Apply returns base with the overrides applied.
func (rc *RequestConfig) Apply(base pipeline.Config) pipeline.Config {
	if rc == nil {
		return base
	}
	if rc.AreaMin != nil {
		base.Detector.Area.Min = *rc.AreaMin
	}
	if rc.AreaMax != nil {
		base.Detector.Area.Max = *rc.AreaMax
	}
	if rc.EllipseColor != nil {
		base.Detector.Annotate.EllipseColor = *rc.EllipseColor
	}
	if rc.TextColor != nil {
		base.Detector.Annotate.TextColor = *rc.TextColor
	}
	return base
}

// parseRequestConfig reads overrides through get, which is usually
// r.FormValue. Malformed values are reported as detector.ErrInvalidConfig.
func parseRequestConfig(get func(string) string) (*RequestConfig, error) {
	rc := &RequestConfig{}
	for key, dst := range map[string]**float64{"area_min": &rc.AreaMin, "area_max": &rc.AreaMax} {
		raw := strings.TrimSpace(get(key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number, got %q", detector.ErrInvalidConfig, key, raw)
		}
		*dst = &v
	}
	for key, dst := range map[string]**color.RGBA{"ellipse_color": &rc.EllipseColor, "text_color": &rc.TextColor} {
		raw := strings.TrimSpace(get(key))
		if raw == "" {
			continue
		}
		c, err := utils.ParseHexColor(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", detector.ErrInvalidConfig, key, err)
		}
		*dst = &c
	}
	return rc, nil
}

// pipelineForRequest returns the shared pipeline, or a fresh one when the
// request carries overrides. Pipelines hold no per-run state so building one
// per request is cheap.
func (s *Server) pipelineForRequest(rc *RequestConfig) (countPipeline, error) {
	if rc.IsEmpty() {
		return s.pipeline, nil
	}
	pl, err := pipeline.NewBuilderFromConfig(rc.Apply(s.baseConfig)).Build()
	if err != nil {
		return nil, err
	}
	return pl, nil
}

// countImageHandler counts coins in an uploaded image.
func (s *Server) countImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Counting pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	data, filename, ok := s.readUpload(w, r)
	if !ok {
		observeFailure(sourceUpload)
		return
	}

	rc, err := parseRequestConfig(r.FormValue)
	if err != nil {
		observeFailure(sourceUpload)
		s.writeProcessingError(w, err)
		return
	}
	pl, err := s.pipelineForRequest(rc)
	if err != nil {
		observeFailure(sourceUpload)
		s.writeProcessingError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	res, err := pl.ProcessBytesContext(ctx, data)
	if err != nil {
		observeFailure(sourceUpload)
		s.writeProcessingError(w, err)
		return
	}
	res.Source = filename
	observeCount(sourceUpload, res, time.Since(start))

	s.writeCountResponse(w, r, res)
}

// readUpload extracts the "image" form file. On failure the error response
// has already been written.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, "", false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, "", false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, "", false
	}
	return data, header.Filename, true
}

// requestFormat returns the requested output format from the form or query.
func requestFormat(r *http.Request) string {
	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == "" {
		return formatJSON
	}
	return strings.ToLower(format)
}

func (s *Server) writeCountResponse(w http.ResponseWriter, r *http.Request, res *pipeline.CountResult) {
	switch format := requestFormat(r); format {
	case formatText:
		locale := r.FormValue("locale")
		if locale == "" {
			locale = s.locale
		}
		text, err := pipeline.ToPlainText(res, locale)
		if err != nil {
			s.writeErrorResponse(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, text+"\n")
	case formatCSV:
		csvStr, err := pipeline.ToCSV(res)
		if err != nil {
			s.writeErrorResponse(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, csvStr)
	case formatImage:
		imgFormat := s.imageFormat(r)
		data, err := pipeline.AnnotatedBytes(res, imgFormat, s.baseConfig.JPEGQuality)
		if err != nil {
			s.writeProcessingError(w, err)
			return
		}
		w.Header().Set("Content-Type", utils.ContentType(imgFormat))
		w.Header().Set("X-Object-Count", strconv.Itoa(res.ObjectCount))
		_, _ = w.Write(data)
	case formatJSON:
		resp := CountResponse{Success: true, Result: res}
		if r.FormValue("annotated") != "0" {
			imgFormat := s.imageFormat(r)
			encoded, err := pipeline.AnnotatedBase64(res, imgFormat, s.baseConfig.JPEGQuality)
			if err != nil {
				s.writeProcessingError(w, err)
				return
			}
			resp.AnnotatedImage = encoded
			resp.ImageFormat = imgFormat
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		s.writeErrorResponse(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
	}
}

// imageFormat returns the annotated image encoding for this request.
func (s *Server) imageFormat(r *http.Request) string {
	switch f := strings.ToLower(r.FormValue("image_format")); f {
	case "png", "jpeg":
		return f
	case "jpg":
		return "jpeg"
	}
	if s.baseConfig.ImageFormat == "png" {
		return "png"
	}
	return "jpeg"
}

package server

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/MeKo-Tech/coincount/internal/utils"
)

// maxBatchItems bounds the number of images in one batch request.
const maxBatchItems = 10

// BatchCountRequest is the JSON body of POST /count/batch. Image data is
// base64 encoded by encoding/json.
type BatchCountRequest struct {
	Images  []BatchImageRequest    `json:"images"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// BatchImageRequest is one image of a batch request.
type BatchImageRequest struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// BatchCountResponse is the reply of POST /count/batch.
type BatchCountResponse struct {
	Success bool                   `json:"success"`
	Results []BatchCountResult     `json:"results"`
	Summary BatchProcessingSummary `json:"summary"`
}

// BatchCountResult is the outcome for one batch item.
type BatchCountResult struct {
	Name    string                `json:"name"`
	Success bool                  `json:"success"`
	Result  *pipeline.CountResult `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// BatchProcessingSummary provides summary statistics for a batch.
type BatchProcessingSummary struct {
	TotalItems    int     `json:"total_items"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	TotalObjects  int     `json:"total_objects"`
	TotalDuration float64 `json:"total_duration_seconds"`
	AvgItemTime   float64 `json:"avg_item_time_seconds"`
}

// countBatchHandler counts several base64 encoded images with the worker pool.
func (s *Server) countBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Counting pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	var req BatchCountRequest
	body := http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to parse JSON request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Images) == 0 {
		s.writeErrorResponse(w, "No images provided in batch request", http.StatusBadRequest)
		return
	}
	if len(req.Images) > maxBatchItems {
		s.writeErrorResponse(w, fmt.Sprintf("Batch size too large (maximum %d items)", maxBatchItems), http.StatusBadRequest)
		return
	}

	rc, err := parseRequestConfig(optionGetter(req.Options))
	if err != nil {
		s.writeProcessingError(w, err)
		return
	}
	pl, err := s.pipelineForRequest(rc)
	if err != nil {
		s.writeProcessingError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	results := make([]BatchCountResult, len(req.Images))
	var (
		images []image.Image
		slots  []int
	)
	for i, item := range req.Images {
		results[i].Name = item.Name
		img, _, err := utils.DecodeImage(item.Data)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		images = append(images, img)
		slots = append(slots, i)
	}

	if len(images) > 0 {
		par := s.baseConfig.Parallel
		par.ProgressCallback = pipeline.NewLogProgressCallback(slog.Default(), slog.LevelDebug)
		par.ErrorHandler = func(i int, _ image.Image, err error) {
			results[slots[i]].Error = err.Error()
		}
		counted, err := pl.ProcessImagesParallelContext(ctx, images, par)
		if err != nil && counted == nil {
			observeFailure(sourceBatch)
			s.writeProcessingError(w, err)
			return
		}
		for i, res := range counted {
			if res == nil {
				continue
			}
			res.Source = req.Images[slots[i]].Name
			results[slots[i]].Result = res
			results[slots[i]].Success = true
		}
	}

	summary := BatchProcessingSummary{TotalItems: len(results)}
	for _, res := range results {
		if res.Success {
			summary.Successful++
			summary.TotalObjects += res.Result.ObjectCount
			objectsCounted.WithLabelValues(sourceBatch).Observe(float64(res.Result.ObjectCount))
		} else {
			summary.Failed++
		}
	}
	duration := time.Since(start)
	summary.TotalDuration = duration.Seconds()
	summary.AvgItemTime = summary.TotalDuration / float64(summary.TotalItems)

	status := "success"
	if summary.Failed > 0 {
		status = "partial"
	}
	countRequestsTotal.WithLabelValues(sourceBatch, status).Inc()
	countProcessingDuration.WithLabelValues(sourceBatch).Observe(duration.Seconds())

	writeJSON(w, http.StatusOK, BatchCountResponse{
		Success: summary.Failed == 0,
		Results: results,
		Summary: summary,
	})
}

// optionGetter exposes a JSON options object through the form-style lookup
// used by parseRequestConfig.
func optionGetter(options map[string]interface{}) func(string) string {
	return func(key string) string {
		v, ok := options[key]
		if !ok || v == nil {
			return ""
		}
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return fmt.Sprintf("%g", t)
		default:
			return fmt.Sprint(t)
		}
	}
}

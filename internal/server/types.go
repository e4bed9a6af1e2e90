package server

import (
	"context"
	"errors"
	"image"
	"net/http"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// countPipeline defines the methods needed by the server from a pipeline.
type countPipeline interface {
	ProcessImageContext(ctx context.Context, img image.Image) (*pipeline.CountResult, error)
	ProcessBytesContext(ctx context.Context, data []byte) (*pipeline.CountResult, error)
	ProcessURL(ctx context.Context, rawURL string) (*pipeline.CountResult, error)
	ProcessImagesParallelContext(ctx context.Context, images []image.Image, cfg pipeline.ParallelConfig) ([]*pipeline.CountResult, error)
	Info() map[string]interface{}
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline         countPipeline
	baseConfig       pipeline.Config
	corsOrigin       string
	maxUploadMB      int64
	timeoutSec       int
	locale           string
	websocketEnabled bool
	rateLimiter      *RateLimiter
}

// RateLimitConfig holds per-client limits. Zero disables a single limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// Config holds server configuration.
type Config struct {
	Host             string
	Port             int
	CORSOrigin       string
	MaxUploadMB      int64
	TimeoutSec       int
	Locale           string
	WebSocketEnabled bool
	PipelineConfig   pipeline.Config
	RateLimit        RateLimitConfig
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ProcessImageRequest is the JSON body of POST /process-image/.
type ProcessImageRequest struct {
	URL string `json:"url"`
}

// ProcessImageResponse is the reply of POST /process-image/.
type ProcessImageResponse struct {
	ObjectCount    int    `json:"object_count"`
	ProcessedImage string `json:"processed_image"`
}

// CountResponse is the JSON reply of POST /count/image.
type CountResponse struct {
	Success        bool                  `json:"success"`
	Result         *pipeline.CountResult `json:"result,omitempty"`
	AnnotatedImage string                `json:"annotated_image,omitempty"`
	ImageFormat    string                `json:"image_format,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer builds the counting pipeline from config and returns a server.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.NewBuilderFromConfig(config.PipelineConfig).Build()
	if err != nil {
		return nil, err
	}
	return newServerWithPipeline(config, pl), nil
}

func newServerWithPipeline(config Config, pl countPipeline) *Server {
	s := &Server{
		pipeline:         pl,
		baseConfig:       config.PipelineConfig,
		corsOrigin:       config.CORSOrigin,
		maxUploadMB:      config.MaxUploadMB,
		timeoutSec:       config.TimeoutSec,
		locale:           config.Locale,
		websocketEnabled: config.WebSocketEnabled,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 50
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline == nil {
		return errors.New("server pipeline not initialized")
	}
	return s.pipeline.Close()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/config", s.corsMiddleware(s.configHandler))
	mux.HandleFunc("/process-image/", s.corsMiddleware(s.rateLimitMiddleware(s.processImageHandler)))
	mux.HandleFunc("/process-image", s.corsMiddleware(s.rateLimitMiddleware(s.processImageHandler)))
	mux.HandleFunc("/count/image", s.corsMiddleware(s.rateLimitMiddleware(s.countImageHandler)))
	mux.HandleFunc("/count/batch", s.corsMiddleware(s.rateLimitMiddleware(s.countBatchHandler)))
	if s.websocketEnabled {
		mux.HandleFunc("/ws/count", s.rateLimitMiddleware(s.countWebSocketHandler))
	}
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return loggingMiddleware(mux)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MeKo-Tech/coincount/internal/config"
	"github.com/MeKo-Tech/coincount/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP counting API",
		Long: `Start an HTTP server exposing the counting pipeline.

Endpoints:
  POST /process-image/  JSON {"url": "..."}; replies object_count and a base64 JPEG
  POST /count/image     multipart upload (field "image"); format json, text, csv or image
  POST /count/batch     JSON list of base64 images
  GET  /ws/count        websocket counting
  GET  /health, /config, /metrics

Examples:
  coincount serve
  coincount serve --host 0.0.0.0 --port 3000
  coincount serve --rate-limit-enabled --requests-per-minute 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			return runServer(ctx, ln, a.cfg)
		},
	}

	d := config.DefaultConfig().Server
	f := cmd.Flags()
	f.StringP("host", "H", d.Host, "server host")
	f.IntP("port", "p", d.Port, "server port")
	f.String("cors-origin", d.CORSOrigin, "CORS allowed origins")
	f.Int("max-upload-size", d.MaxUploadMB, "maximum upload size in MB")
	f.Int("timeout", d.TimeoutSec, "request timeout in seconds")
	f.Int("shutdown-timeout", d.ShutdownTimeout, "shutdown timeout in seconds")
	f.Bool("websocket", d.WebSocketEnabled, "enable the /ws/count endpoint")
	f.Bool("rate-limit-enabled", d.RateLimit.Enabled, "enable rate limiting")
	f.Int("requests-per-minute", d.RateLimit.RequestsPerMinute, "maximum requests per minute per client")
	f.Int("requests-per-hour", d.RateLimit.RequestsPerHour, "maximum requests per hour per client")
	f.Int("max-requests-per-day", d.RateLimit.MaxRequestsPerDay, "maximum requests per day per client")
	f.Int64("max-data-per-day", d.RateLimit.MaxDataPerDayMB, "maximum data processed per day per client (MB)")
	addSegmentationFlags(cmd)

	a.register(cmd, map[string]string{
		"server.host":                            "host",
		"server.port":                            "port",
		"server.cors_origin":                     "cors-origin",
		"server.max_upload_mb":                   "max-upload-size",
		"server.timeout_sec":                     "timeout",
		"server.shutdown_timeout":                "shutdown-timeout",
		"server.websocket_enabled":               "websocket",
		"server.rate_limit.enabled":              "rate-limit-enabled",
		"server.rate_limit.requests_per_minute":  "requests-per-minute",
		"server.rate_limit.requests_per_hour":    "requests-per-hour",
		"server.rate_limit.max_requests_per_day": "max-requests-per-day",
		"server.rate_limit.max_data_per_day_mb":  "max-data-per-day",
	})
	a.register(cmd, segmentationFlagKeys)
	return cmd
}

// toServerConfig maps the resolved configuration to server.Config.
func toServerConfig(cfg *config.Config) server.Config {
	s := cfg.Server
	return server.Config{
		Host:             s.Host,
		Port:             s.Port,
		CORSOrigin:       s.CORSOrigin,
		MaxUploadMB:      int64(s.MaxUploadMB),
		TimeoutSec:       s.TimeoutSec,
		Locale:           cfg.Output.Locale,
		WebSocketEnabled: s.WebSocketEnabled,
		PipelineConfig:   cfg.ToPipelineConfig(),
		RateLimit: server.RateLimitConfig{
			Enabled:           s.RateLimit.Enabled,
			RequestsPerMinute: s.RateLimit.RequestsPerMinute,
			RequestsPerHour:   s.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: s.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     s.RateLimit.MaxDataPerDayMB * 1024 * 1024,
		},
	}
}

// runServer serves on ln until ctx ends, then shuts down gracefully.
func runServer(ctx context.Context, ln net.Listener, cfg *config.Config) error {
	srv, err := server.NewServer(toServerConfig(cfg))
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		// Leave room to write the response after the pipeline deadline.
		WriteTimeout: timeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting counting server", "addr", ln.Addr().String())
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("Received shutdown signal", "cause", context.Cause(ctx))
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("Graceful shutdown completed")
	return nil
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to server.cors_origin and the deployment proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocketCountRequest is a client message on /ws/count. Exactly one of URL
// or Image must be set; Image is base64 in JSON.
type WebSocketCountRequest struct {
	Type        string                 `json:"type"`
	RequestID   string                 `json:"request_id,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Image       []byte                 `json:"image,omitempty"`
	Filename    string                 `json:"filename,omitempty"`
	ImageFormat string                 `json:"image_format,omitempty"`
	Annotated   *bool                  `json:"annotated,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

// WebSocketCountResponse is a server message on /ws/count.
type WebSocketCountResponse struct {
	Type           string                `json:"type"`
	Status         string                `json:"status"` // "processing", "completed", "error"
	RequestID      string                `json:"request_id,omitempty"`
	Result         *pipeline.CountResult `json:"result,omitempty"`
	AnnotatedImage string                `json:"annotated_image,omitempty"`
	ImageFormat    string                `json:"image_format,omitempty"`
	Error          string                `json:"error,omitempty"`
	ErrorType      string                `json:"error_type,omitempty"`
}

// WebSocketConnWriter is the write side of a websocket connection.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// countWebSocketHandler upgrades the connection and serves count requests
// until the client goes away.
func (s *Server) countWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", getClientIP(r))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.serveWebSocket(ctx, conn)
}

func (s *Server) serveWebSocket(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket read failed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		if messageType != websocket.TextMessage {
			s.sendWebSocketError(conn, "", "invalid_request", "only text messages are supported")
			continue
		}
		s.handleWebSocketMessage(ctx, conn, data)
	}
}

// handleWebSocketMessage answers one count request. Replies are written from
// the read loop so they never interleave.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketCountRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	if req.Type != "count" {
		s.sendWebSocketError(conn, requestID, "invalid_request", "Unsupported request type: "+req.Type)
		return
	}
	url := strings.TrimSpace(req.URL)
	if (url == "") == (len(req.Image) == 0) {
		s.sendWebSocketError(conn, requestID, "invalid_request", "Exactly one of 'url' or 'image' is required")
		return
	}
	if s.pipeline == nil {
		s.sendWebSocketError(conn, requestID, "processing_error", "Counting pipeline not initialized")
		return
	}

	rc, err := parseRequestConfig(optionGetter(req.Options))
	if err != nil {
		s.sendWebSocketError(conn, requestID, "invalid_request", err.Error())
		return
	}
	pl, err := s.pipelineForRequest(rc)
	if err != nil {
		s.sendWebSocketError(conn, requestID, "invalid_request", err.Error())
		return
	}

	s.sendWebSocketResponse(conn, WebSocketCountResponse{Type: "count", Status: "processing", RequestID: requestID})

	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	var res *pipeline.CountResult
	if url != "" {
		res, err = pl.ProcessURL(ctx, url)
	} else {
		res, err = pl.ProcessBytesContext(ctx, req.Image)
		if res != nil {
			res.Source = req.Filename
		}
	}
	if err != nil {
		observeFailure(sourceWebSocket)
		s.sendWebSocketError(conn, requestID, errorType(err), err.Error())
		return
	}
	observeCount(sourceWebSocket, res, time.Since(start))

	resp := WebSocketCountResponse{Type: "count", Status: "completed", RequestID: requestID, Result: res}
	if req.Annotated == nil || *req.Annotated {
		format := strings.ToLower(req.ImageFormat)
		if format != "png" && format != "jpeg" {
			format = s.baseConfig.ImageFormat
		}
		encoded, err := pipeline.AnnotatedBase64(res, format, s.baseConfig.JPEGQuality)
		if err != nil {
			s.sendWebSocketError(conn, requestID, "processing_error", err.Error())
			return
		}
		resp.AnnotatedImage = encoded
		resp.ImageFormat = format
	}
	s.sendWebSocketResponse(conn, resp)
}

// errorType names the error class the way HTTP clients see it as a status.
func errorType(err error) string {
	switch statusForError(err) {
	case http.StatusUnprocessableEntity:
		return "invalid_request"
	case http.StatusBadRequest:
		return "bad_image"
	default:
		return "processing_error"
	}
}

func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, resp WebSocketCountResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketCountResponse{
		Type:      "count",
		Status:    "error",
		RequestID: requestID,
		Error:     message,
		ErrorType: errorType,
	})
}

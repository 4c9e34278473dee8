package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/sayso/internal/observe"
)

// Message is the JSON form of an inbound transcript frame. Plain text
// frames are accepted as well and taken verbatim.
type Message struct {
	Text string `json:"text"`
}

// errorReply is sent for frames that cannot be processed.
type errorReply struct {
	Error string `json:"error"`
}

// WebSocketHandler accepts transcript streams over WebSocket. Each text
// frame is processed in order and answered with the resulting event as JSON.
type WebSocketHandler struct {
	process      ProcessFunc
	metrics      *observe.Metrics
	acceptOpts   *websocket.AcceptOptions
	maxFrameSize int64
}

// WebSocketOption configures a [WebSocketHandler].
type WebSocketOption func(*WebSocketHandler)

// WithMetrics records stream gauges on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) WebSocketOption {
	return func(h *WebSocketHandler) {
		h.metrics = m
	}
}

// WithOriginPatterns allows cross-origin connections from hosts matching
// the given patterns (see [websocket.AcceptOptions.OriginPatterns]).
func WithOriginPatterns(patterns ...string) WebSocketOption {
	return func(h *WebSocketHandler) {
		h.acceptOpts.OriginPatterns = append(h.acceptOpts.OriginPatterns, patterns...)
	}
}

// NewWebSocketHandler returns a handler that passes every transcript to
// process.
func NewWebSocketHandler(process ProcessFunc, opts ...WebSocketOption) *WebSocketHandler {
	h := &WebSocketHandler{
		process:      process,
		acceptOpts:   &websocket.AcceptOptions{},
		maxFrameSize: maxLineBytes,
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// ServeHTTP upgrades the request and serves the stream until the peer
// closes it or the request context ends.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.acceptOpts)
	if err != nil {
		slog.Warn("ingest: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.maxFrameSize)

	ctx := r.Context()
	attrs := metric.WithAttributes(observe.Attr("source", "websocket"))
	h.metrics.ActiveStreams.Add(ctx, 1, attrs)
	defer h.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1, attrs)

	slog.Info("ingest: websocket stream opened", "remote", r.RemoteAddr)
	err = h.serve(ctx, conn)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		slog.Info("ingest: websocket stream closed", "remote", r.RemoteAddr)
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if errors.Is(err, context.Canceled) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		slog.Warn("ingest: websocket stream failed", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "stream error")
	}
}

// serve runs the read loop. It only returns with a non-nil error.
func (h *WebSocketHandler) serve(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			if err := wsjson.Write(ctx, conn, errorReply{Error: "binary frames are not supported"}); err != nil {
				return err
			}
			continue
		}

		text, err := decodeFrame(data)
		if err != nil {
			if err := wsjson.Write(ctx, conn, errorReply{Error: err.Error()}); err != nil {
				return err
			}
			continue
		}
		if text == "" {
			continue
		}

		ev := h.process(ctx, text)
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			return err
		}
	}
}

// decodeFrame extracts the transcript from a JSON object or plain text
// frame.
func decodeFrame(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var m Message
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return "", errors.New("invalid JSON frame: " + err.Error())
		}
		return strings.TrimSpace(m.Text), nil
	}
	return string(trimmed), nil
}

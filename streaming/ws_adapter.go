// Package streaming delivers generation progress notifications to clients
// over websockets: one frame per assembled section, then a terminal complete
// or error frame.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/generation"
)

// Frame is the wire shape of one progress notification.
type Frame struct {
	Kind     string          `json:"kind"`
	Key      string          `json:"key,omitempty"`
	HTML     string          `json:"html,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// WebSocketNotifier adapts a websocket connection into an assembler
// notification sink. Writes are mutex-protected because websocket
// connections do not support concurrent writes.
type WebSocketNotifier struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewWebSocketNotifier wraps an accepted websocket connection.
func NewWebSocketNotifier(conn *websocket.Conn, logger *zap.Logger) *WebSocketNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketNotifier{
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_notifier")),
	}
}

// Notify returns a callback suitable for the generation service's streaming
// entry point. Send failures are logged and swallowed; a slow or dead client
// must not abort the generation that is being persisted server-side.
func (w *WebSocketNotifier) Notify(ctx context.Context) func(generation.Notification) {
	return func(n generation.Notification) {
		frame := Frame{
			Kind: string(n.Kind),
			Key:  n.Key,
			HTML: n.HTML,
		}
		if n.Document != nil {
			data, err := json.Marshal(n.Document)
			if err != nil {
				w.logger.Warn("marshal document frame", zap.Error(err))
				return
			}
			frame.Document = data
		}
		if n.Err != nil {
			frame.Error = n.Err.Error()
		}
		if err := w.write(ctx, frame); err != nil {
			w.logger.Warn("notification write failed",
				zap.String("kind", string(n.Kind)), zap.Error(err))
		}
	}
}

func (w *WebSocketNotifier) write(ctx context.Context, frame Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("connection closed")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close closes the underlying connection. Safe to call more than once.
func (w *WebSocketNotifier) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close(websocket.StatusNormalClosure, "stream complete")
}

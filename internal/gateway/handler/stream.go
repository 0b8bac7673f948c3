package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ultraflow/internal/gateway/middleware"
	"ultraflow/internal/gateway/service/flowchart"
	"ultraflow/internal/llm"
	"ultraflow/internal/pipeline"
)

const (
	streamWriteWait   = 10 * time.Second
	streamRequestWait = 30 * time.Second
)

func newStreamUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     middleware.OriginAllowed(allowedOrigins),
	}
}

type streamMessage struct {
	Type    string            `json:"type"`
	Event   *pipeline.Event   `json:"event,omitempty"`
	Result  *generateResponse `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
}

type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *streamConn) send(msg streamMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return c.conn.WriteJSON(msg)
}

func (c *streamConn) close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(streamWriteWait))
	_ = c.conn.Close()
}

// StreamFlowchart handles GET /ws/flowchart. The client sends one request
// object; the server answers with stage events and a final result or error.
func (h *Handler) StreamFlowchart(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	sc := &streamConn{conn: conn}
	conn.SetReadLimit(maxBodyBytes)

	var in flowchart.GenerateInput
	_ = conn.SetReadDeadline(time.Now().Add(streamRequestWait))
	if err := conn.ReadJSON(&in); err != nil {
		_ = sc.send(streamMessage{Type: "error", Error: "validation_error", Message: "first message must be a JSON request object"})
		sc.close(websocket.CloseUnsupportedData, "bad request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = llm.WithRequestID(ctx, chimiddleware.GetReqID(r.Context()))

	// A read error means the client went away; stop the run.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	progress := pipeline.ObserverFunc(func(ev pipeline.Event) {
		if err := sc.send(streamMessage{Type: "stage", Event: &ev}); err != nil {
			h.logger.Debug("ws progress write failed", zap.Error(err))
		}
	})
	res, err := h.gen.Generate(ctx, in, pipeline.WithObserver(progress))
	if err != nil {
		_, code := statusFor(err)
		h.logger.Warn("streamed flowchart generation failed", zap.String("code", code), zap.Error(err))
		_ = sc.send(streamMessage{Type: "error", Error: code, Message: err.Error()})
		sc.close(websocket.CloseNormalClosure, code)
		return
	}
	_ = sc.send(streamMessage{Type: "result", Result: &generateResponse{Success: true, Result: res}})
	sc.close(websocket.CloseNormalClosure, "done")
}

package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/agent"
	"github.com/Kocoro-lab/lina/internal/metrics"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 10 * time.Second
	wsReadLimit  = maxChatBody
)

// RegisterWebSocket registers the /chat/ws endpoint.
func (h *ChatHandler) RegisterWebSocket(mux *http.ServeMux) {
	mux.HandleFunc("/chat/ws", h.handleWS)
}

func (h *ChatHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.origins.allows(origin) {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", zap.String("origin", origin))
	return false
}

// handleWS runs one conversation per request frame received on the socket. Frames that
// arrive while a conversation is running queue behind it.
func (h *ChatHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ws := &wsWriter{conn: conn}
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	requests := make(chan ChatRequest)
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer wg.Wait()
	defer close(done)

	// Reader pump
	go func() {
		defer close(requests)
		for {
			var req ChatRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("WebSocket closed unexpectedly", zap.Error(err))
				}
				return
			}
			select {
			case requests <- req:
			case <-done:
				return
			}
			// The previous conversation may have outlived the deadline while this
			// goroutine waited on the send.
			_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
		}
	}()

	// Pings keep flowing while a conversation runs.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := ws.ping(); err != nil {
					h.logger.Debug("WebSocket ping failed", zap.Error(err))
					return
				}
			}
		}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			if err := req.validate(); err != nil {
				ws.emit(agent.Event{Type: agent.EventError, Data: err.Error()})
				continue
			}
			out, err := h.runner.Run(ctx, agent.Request{
				Model:     req.Model,
				Messages:  req.Messages,
				Transport: "websocket",
			}, ws.emit)
			if err != nil && out != nil {
				h.logger.Info("WebSocket chat ended with error",
					zap.String("conversation_id", out.ConversationID), zap.Error(err))
			}
			if ws.failed() {
				return
			}
		}
	}
}

// wsWriter serializes writes to the connection; gorilla allows one concurrent writer.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
	err  error
}

func (s *wsWriter) emit(e agent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := s.conn.WriteJSON(e); err != nil {
		s.err = err
		return
	}
	metrics.StreamEvents.WithLabelValues("websocket", string(e.Type)).Inc()
}

func (s *wsWriter) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
		s.err = err
	}
	return s.err
}

func (s *wsWriter) failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil
}

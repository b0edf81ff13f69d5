package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/notification"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	requestWait    = 10 * time.Second
	maxRequestSize = 64 << 10
	sendBuffer     = 64
)

// optimizeSession streams one optimization over a websocket. The client
// sends a single OptimizeRequest; the server answers with progress frames
// followed by exactly one result or error frame, then closes.
type optimizeSession struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *Server) handleOptimizeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return
	}
	s.wsClients.Add(1)
	s.metrics.WSClient(1)
	defer func() {
		s.wsClients.Add(-1)
		s.metrics.WSClient(-1)
	}()

	sess := &optimizeSession{conn: conn, send: make(chan []byte, sendBuffer)}

	conn.SetReadLimit(maxRequestSize)
	conn.SetReadDeadline(time.Now().Add(requestWait))
	var req OptimizeRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.log.Info("ws optimize: no request", "error", err)
		conn.Close()
		return
	}
	if msg := requireFields(req.Symbol, req.Strategy); msg != "" {
		sess.closeWith(StreamMsg{Type: MsgError, Error: msg, Kind: kindBadRequest})
		return
	}

	ctx, cancel := context.WithTimeout(logger.EnsureRunID(context.Background(), req.Symbol), s.optimizeTimeout)
	defer cancel()

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	go sess.readPump(cancel)
	pumpDone := make(chan struct{})
	go func() {
		sess.writePump()
		close(pumpDone)
	}()

	s.log.InfoContext(ctx, "ws optimize started",
		append(logger.LogWithRun(ctx), "symbol", req.Symbol, "strategy", req.Strategy)...)

	rep, err := s.svc.OptimizeStrategy(ctx, req.Symbol, req.Strategy, req.Period, req.ParamGrid,
		func(done, total int) {
			sess.offer(StreamMsg{Type: MsgProgress, Done: done, Total: total})
		})

	final := StreamMsg{Type: MsgResult, Report: rep}
	if err == nil {
		s.notify(ctx, notification.OptimizationAlert(rep))
	} else {
		final = StreamMsg{Type: MsgError, Error: err.Error(), Kind: backtest.Kind(err)}
		s.log.InfoContext(ctx, "ws optimize failed",
			append(logger.LogWithRun(ctx), "kind", final.Kind, "error", err)...)
	}
	if b, mErr := json.Marshal(final); mErr == nil {
		select {
		case sess.send <- b:
		case <-pumpDone:
		}
	}
	close(sess.send)
	<-pumpDone
}

// offer queues a progress frame, dropping it when the client is slow.
func (c *optimizeSession) offer(msg StreamMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// closeWith writes msg synchronously and closes the connection. Used before
// the pumps are running.
func (c *optimizeSession) closeWith(msg StreamMsg) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteJSON(msg)
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}

func (c *optimizeSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the read deadline fresh and cancels the run when the
// client goes away.
func (c *optimizeSession) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

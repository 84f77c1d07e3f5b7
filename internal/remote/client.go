package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	// maxMessageBytes bounds one message from the page.
	maxMessageBytes = 1 << 20
	sendBuffer      = 64
	writeTimeout    = 5 * time.Second
	pingInterval    = 30 * time.Second
)

// Frame types sent to the tab.
const (
	frameHello    = "hello"
	frameEval     = "eval"
	frameReload   = "reload"
	frameNavigate = "navigate"
	frameTitle    = "title"
)

type frame struct {
	Type  string `json:"type"`
	JS    string `json:"js,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// client is one connected tab. Writes go through send so a slow tab never
// blocks the UI goroutine.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
}

func (s *Surface) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("remote: websocket accept", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), cancel: cancel}
	hello, _ := json.Marshal(frame{Type: frameHello})
	c.send <- hello
	if !s.addClient(c) {
		cancel()
		_ = conn.Close(websocket.StatusGoingAway, "surface terminated")
		return
	}
	defer s.removeClient(c)
	go s.writeLoop(ctx, c)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				s.log.Debug("remote: websocket read", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		msg := string(data)
		if !s.loop.Post(func() { s.deliver(msg) }) {
			return
		}
	}
}

// writeLoop drains c.send and keeps the connection alive until ctx ends.
func (s *Surface) writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Surface) addClient(c *client) bool {
	if s.loop.Terminated() {
		return false
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Debug("remote: tab connected", zap.Int("clients", n))
	return true
}

func (s *Surface) removeClient(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	c.cancel()
	if ok {
		_ = c.conn.CloseNow()
	}
}

// broadcast queues f for every connected tab. A tab whose buffer is full
// is disconnected; it reloads the page when it reconnects.
func (s *Surface) broadcast(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.log.Error("remote: encoding frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	s.mu.Lock()
	var slow []*client
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.Unlock()
	for _, c := range slow {
		s.log.Warn("remote: dropping slow tab", zap.String("frame", f.Type))
		s.removeClient(c)
	}
}

func (s *Surface) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "surface terminated")
		c.cancel()
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/kb"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FrameMessage is one WebSocket push. The first message on every connection
// carries the current snapshot; later ones follow each published frame.
type FrameMessage struct {
	Type string `json:"type"`
	core.Snapshot
}

// hub fans frames out to stream clients. Frame notifications only set a
// pending flag; the snapshot is built on the hub goroutine, outside the
// engine's tick.
type hub struct {
	sim   Simulation
	queue int
	log   logging.Logger

	notify      chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func newHub(sim Simulation, queue int, log logging.Logger) *hub {
	return &hub{
		sim:     sim,
		queue:   queue,
		log:     log,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		clients: make(map[*streamClient]struct{}),
	}
}

func (h *hub) attach(src FrameSource) {
	h.unsubscribe = src.Subscribe(func(kb.Event) { h.signal() })
}

func (h *hub) signal() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *hub) run() {
	for {
		select {
		case <-h.done:
			return
		case <-h.notify:
			h.broadcast()
		}
	}
}

func (h *hub) broadcast() {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	if n == 0 {
		return
	}

	msg, err := json.Marshal(FrameMessage{Type: "frame", Snapshot: h.sim.Snapshot()})
	if err != nil {
		h.log.Error(context.Background(), "encode frame", logging.Err(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.offer(msg)
	}
}

func (h *hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *hub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed() {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.closeOnce.Do(func() {
		if h.unsubscribe != nil {
			h.unsubscribe()
		}
		h.mu.Lock()
		close(h.done)
		for c := range h.clients {
			c.stop()
		}
		h.mu.Unlock()
	})
}

// streamClient owns one WebSocket. Only writePump writes to the connection.
type streamClient struct {
	conn    *websocket.Conn
	send    chan []byte
	quit    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func newStreamClient(conn *websocket.Conn, queue int) *streamClient {
	return &streamClient{
		conn: conn,
		send: make(chan []byte, queue),
		quit: make(chan struct{}),
	}
}

// offer queues msg, dropping it when the client is behind.
func (c *streamClient) offer(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.dropped.Add(1)
	}
}

func (c *streamClient) stop() {
	c.once.Do(func() { close(c.quit) })
}

// readPump drains control frames and notices the peer going away.
func (c *streamClient) readPump() {
	defer c.stop()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quit:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// handleStream upgrades to a WebSocket and pushes a snapshot after every
// frame until either side goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub.closed() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	ip := clientIP(r, s.opts.TrustProxy)
	if !s.streams.acquire(ip) {
		s.log.Warn(r.Context(), "stream limit exceeded",
			logging.String("remote_ip", ip),
			logging.Int("current_count", s.streams.count(ip)))
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}
	defer s.streams.release(ip)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.log.Debug(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	c := newStreamClient(conn, s.opts.StreamQueue)
	if !s.hub.add(c) {
		return
	}
	defer s.hub.remove(c)

	s.opts.SimMetrics.StreamOpened()
	defer s.opts.SimMetrics.StreamClosed()

	start := time.Now()
	s.log.Info(r.Context(), "stream connected", logging.String("remote_ip", ip))
	defer func() {
		s.log.Info(context.Background(), "stream disconnected",
			logging.String("remote_ip", ip),
			logging.Any("duration_seconds", int(time.Since(start).Seconds())),
			logging.Any("dropped_frames", c.dropped.Load()))
	}()

	first, err := json.Marshal(FrameMessage{Type: "snapshot", Snapshot: s.opts.Sim.Snapshot()})
	if err != nil {
		s.log.Error(r.Context(), "encode snapshot", logging.Err(err))
		return
	}
	c.offer(first)

	go c.readPump()
	if err := c.writePump(r.Context()); err != nil {
		s.log.Debug(context.Background(), "stream write ended", logging.Err(err))
	}
}

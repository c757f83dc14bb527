package protocol

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iris-network/coordinator/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn wraps one worker's WebSocket and implements registry.Connection.
type Conn struct {
	nodeID string
	ws     *websocket.Conn
	send   chan []byte
	grace  time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, grace time.Duration) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, 256),
		grace:  grace,
		closed: make(chan struct{}),
	}
}

// Send enqueues a frame for delivery. If the outbound queue is full it
// blocks only up to the configured grace period before reporting
// failure, so a stalled worker becomes NODE_LOST instead of wedging
// the dispatcher.
func (c *Conn) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return websocket.ErrCloseSent
	case <-time.After(c.grace):
		return errSendTimeout
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Conn) Close(reason string) error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(time.Second))
		c.ws.Close()
	})
	return nil
}

// SendFrame marshals and enqueues a Frame.
func (c *Conn) SendFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// ─── Read/write pumps ───────────────────────────────────────────────────────

// writePump drains the send queue onto the socket, interleaving
// periodic pings so idle connections still detect a dead peer.
func (c *Conn) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readPump reads frames off the socket and hands each to onFrame until
// the connection drops, then calls onClose exactly once.
func (c *Conn) readPump(readLimit int64, onFrame func(Frame), onClose func()) {
	defer onClose()
	c.ws.SetReadLimit(readLimit)
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		onFrame(f)
	}
}

// Hub accepts incoming worker WebSocket connections and wires their
// frames into the caller-supplied handlers — it owns no domain state
// itself, mirroring the registry's role as sole state authority.
type Hub struct {
	cfg config.WorkerConfig
	log *log.Logger

	OnRegister func(conn *Conn, f Frame) // must call conn.SendFrame(REGISTER_ACK)
	OnFrame    func(nodeID string, f Frame)
	OnClose    func(nodeID string)
}

// NewHub creates a Hub.
func NewHub(cfg config.WorkerConfig, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stdout, "[Protocol] ", log.LstdFlags)
	}
	return &Hub{cfg: cfg, log: logger}
}

// ServeHTTP upgrades an inbound request to a worker WebSocket and
// starts its pumps. The first frame received must be REGISTER.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("upgrade failed: %v", err)
		return
	}
	conn := newConn(ws, h.cfg.SendGrace())
	go conn.writePump()

	var nodeID string
	var registered bool
	conn.readPump(1<<20, func(f Frame) {
		if !registered {
			if f.Type != FrameRegister {
				conn.Close("expected REGISTER frame first")
				return
			}
			nodeID = f.NodeID
			registered = true
			if h.OnRegister != nil {
				h.OnRegister(conn, f)
			}
			return
		}
		if h.OnFrame != nil {
			h.OnFrame(nodeID, f)
		}
	}, func() {
		if registered && h.OnClose != nil {
			h.OnClose(nodeID)
		}
	})
}

package transport

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/protocol"
)

// WebSocketPath is where ListenWebSocket mounts the upgrade handler.
const WebSocketPath = "/ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn carries one packet per binary message.
type wsConn struct {
	hub    *Hub
	conn   *websocket.Conn
	key    string
	remote string
	writeM sync.Mutex
	closed atomic.Bool
}

// WebSocketHandler upgrades requests into peers of this hub.
func (h *Hub) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.closing() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", logging.Error(err), logging.String("remote", r.RemoteAddr))
			return
		}
		conn.SetReadLimit(protocol.MaxFrameSize)
		c := &wsConn{
			hub:    h,
			conn:   conn,
			key:    string(KindWS) + ":" + strconv.FormatUint(h.nextSerial(), 10) + ":" + r.RemoteAddr,
			remote: r.RemoteAddr,
		}
		h.track(c)
		h.wg.Add(1)
		go c.readLoop()
	})
}

// ListenWebSocket serves WebSocketHandler on its own HTTP listener.
func (h *Hub) ListenWebSocket(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(WebSocketPath, h.WebSocketHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	h.track(srv)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("websocket listener stopped", logging.Error(err))
		}
	}()
	return ln.Addr(), nil
}

func (c *wsConn) readLoop() {
	defer c.hub.wg.Done()
	defer c.hub.untrack(c)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || c.hub.closing() {
				return
			}
			c.closed.Store(true)
			_ = c.conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.hub.peerGone(c, err)
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if !c.hub.decode(c, data) {
			return
		}
	}
}

func (c *wsConn) Key() string        { return c.key }
func (c *wsConn) Kind() Kind         { return KindWS }
func (c *wsConn) RemoteAddr() string { return c.remote }

// Send writes one binary message with a deadline.
func (c *wsConn) Send(p *protocol.Packet) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data := protocol.Marshal(p)
	c.writeM.Lock()
	defer c.writeM.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	c.hub.observeSent(c, p, len(data))
	return nil
}

// Close sends a close frame on a best-effort basis and drops the socket.
func (c *wsConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.hub.budget.Forget(c.key)
	c.writeM.Lock()
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeM.Unlock()
	return c.conn.Close()
}

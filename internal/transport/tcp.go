package transport

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/protocol"
)

// tcpConn is a length-prefixed packet stream.
type tcpConn struct {
	hub    *Hub
	conn   net.Conn
	key    string
	writeM sync.Mutex
	closed atomic.Bool
}

// ListenTCP starts accepting stream peers.
func (h *Hub) ListenTCP(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	h.track(ln)
	h.wg.Add(1)
	go h.acceptLoop(ln)
	return ln.Addr(), nil
}

func (h *Hub) acceptLoop(ln net.Listener) {
	defer h.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || h.closing() {
				return
			}
			h.logger.Warn("tcp accept failed", logging.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		c := &tcpConn{
			hub:  h,
			conn: conn,
			key:  string(KindTCP) + ":" + strconv.FormatUint(h.nextSerial(), 10) + ":" + conn.RemoteAddr().String(),
		}
		h.track(c)
		h.wg.Add(1)
		go c.readLoop()
	}
}

func (c *tcpConn) readLoop() {
	defer c.hub.wg.Done()
	defer c.hub.untrack(c)
	var frames protocol.FrameBuffer
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			//1.- Decode every complete frame, keeping the partial tail buffered.
			payloads, ferr := frames.Feed(buf[:n])
			for _, payload := range payloads {
				if !c.hub.decode(c, payload) {
					return
				}
			}
			if ferr != nil {
				c.hub.metrics.ObserveDecodeError()
				_ = c.conn.Close()
				c.hub.peerGone(c, ferr)
				return
			}
		}
		if err != nil {
			//2.- A locally closed connection needs no report.
			if c.closed.Load() || c.hub.closing() {
				return
			}
			c.closed.Store(true)
			_ = c.conn.Close()
			c.hub.peerGone(c, err)
			return
		}
	}
}

func (c *tcpConn) Key() string        { return c.key }
func (c *tcpConn) Kind() Kind         { return KindTCP }
func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Send writes one framed packet with a deadline.
func (c *tcpConn) Send(p *protocol.Packet) error {
	if c.closed.Load() {
		return ErrClosed
	}
	frame := protocol.Encode(p)
	c.writeM.Lock()
	defer c.writeM.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		return err
	}
	c.hub.observeSent(c, p, len(frame))
	return nil
}

func (c *tcpConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.hub.budget.Forget(c.key)
	return c.conn.Close()
}

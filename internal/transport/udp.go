package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/protocol"
)

// udpEndpoint multiplexes every datagram peer over one socket. Peers are
// identified by their source address; one datagram carries one packet.
type udpEndpoint struct {
	hub  *Hub
	conn *net.UDPConn

	mu    sync.Mutex
	peers map[string]*udpConn
}

type udpConn struct {
	ep     *udpEndpoint
	addr   *net.UDPAddr
	key    string
	closed atomic.Bool
}

// ListenUDP binds a datagram socket and starts its reader.
func (h *Hub) ListenUDP(addr string) (net.Addr, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	ep := &udpEndpoint{hub: h, conn: conn, peers: make(map[string]*udpConn)}
	h.track(conn)
	h.wg.Add(1)
	go ep.readLoop()
	return conn.LocalAddr(), nil
}

func (ep *udpEndpoint) readLoop() {
	defer ep.hub.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := ep.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ep.hub.closing() {
				return
			}
			ep.hub.logger.Warn("udp read failed", logging.Error(err))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		if !ep.hub.decode(ep.peer(addr), data) {
			return
		}
	}
}

// peer returns the connection of a source address, creating it on first
// contact.
func (ep *udpEndpoint) peer(addr *net.UDPAddr) *udpConn {
	key := string(KindUDP) + ":" + addr.String()
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if c, ok := ep.peers[key]; ok {
		return c
	}
	c := &udpConn{ep: ep, addr: addr, key: key}
	ep.peers[key] = c
	return c
}

func (ep *udpEndpoint) forget(c *udpConn) {
	ep.mu.Lock()
	if ep.peers[c.key] == c {
		delete(ep.peers, c.key)
	}
	ep.mu.Unlock()
}

func (c *udpConn) Key() string        { return c.key }
func (c *udpConn) Kind() Kind         { return KindUDP }
func (c *udpConn) RemoteAddr() string { return c.addr.String() }

// Send writes one datagram. A datagram socket has no connection to lose, so
// errors are returned for logging only.
func (c *udpConn) Send(p *protocol.Packet) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data := protocol.Marshal(p)
	if _, err := c.ep.conn.WriteToUDP(data, c.addr); err != nil {
		return err
	}
	c.ep.hub.observeSent(c, p, len(data))
	return nil
}

// Close forgets the peer; a later datagram from the same address starts a
// new connection.
func (c *udpConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.ep.forget(c)
	c.ep.hub.budget.Forget(c.key)
	return nil
}

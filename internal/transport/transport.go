// Package transport moves packets between remote peers and the server loop.
// Every endpoint runs its own reader goroutines and funnels decoded packets
// into one channel so the loop stays single threaded.
package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/networking"
	"whiteshoe/server/internal/protocol"
)

// Kind names the transport a connection arrived on.
type Kind string

const (
	KindUDP Kind = "udp"
	KindTCP Kind = "tcp"
	KindWS  Kind = "ws"
)

// ErrClosed is returned by Send on a closed connection.
var ErrClosed = errors.New("connection closed")

const (
	// DefaultInboundBuffer bounds packets queued for the loop.
	DefaultInboundBuffer = 1024
	// DefaultWriteTimeout bounds a single stream write.
	DefaultWriteTimeout = 2 * time.Second
	maxDatagram         = 64 * 1024
)

// Conn is one remote peer regardless of transport.
type Conn interface {
	// Key identifies the peer uniquely for the lifetime of the process.
	Key() string
	Kind() Kind
	RemoteAddr() string
	Send(p *protocol.Packet) error
	Close() error
}

// Revive returns the connection a queued packet should open a session on.
// A datagram peer closed after its packet was queued is replaced by the live
// peer for the same address; a closed stream connection reports false.
func Revive(conn Conn) (Conn, bool) {
	switch c := conn.(type) {
	case *udpConn:
		if !c.closed.Load() {
			return c, true
		}
		return c.ep.peer(c.addr), true
	case *tcpConn:
		return c, !c.closed.Load()
	case *wsConn:
		return c, !c.closed.Load()
	}
	return conn, true
}

// Inbound is one event for the server loop. Exactly one of Packet, Err or
// Closed describes it; Closed may carry the read error that ended the peer.
type Inbound struct {
	Conn   Conn
	Packet *protocol.Packet
	Err    error
	Closed bool
}

// Hub owns every listener and the shared inbound channel.
type Hub struct {
	inbound      chan Inbound
	done         chan struct{}
	closeOnce    sync.Once
	metrics      *networking.TrafficMetrics
	budget       *networking.InboundBudget
	logger       *logging.Logger
	writeTimeout time.Duration

	mu      sync.Mutex
	closers []io.Closer
	wg      sync.WaitGroup
	serial  atomic.Uint64
}

// Option customises a Hub.
type Option func(*Hub)

// WithMetrics counts traffic on every connection.
func WithMetrics(m *networking.TrafficMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithInboundBudget drops reads from peers exceeding their byte budget.
func WithInboundBudget(b *networking.InboundBudget) Option {
	return func(h *Hub) { h.budget = b }
}

// WithLogger sets the logger used for transport diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithInboundBuffer sets the capacity of the inbound channel.
func WithInboundBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.inbound = make(chan Inbound, n)
		}
	}
}

// WithWriteTimeout bounds stream writes.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// NewHub builds a hub without listeners.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		inbound:      make(chan Inbound, DefaultInboundBuffer),
		done:         make(chan struct{}),
		logger:       logging.L(),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Inbound exposes the raw event channel.
func (h *Hub) Inbound() <-chan Inbound { return h.inbound }

// Receive waits up to wait for the first event and then drains whatever else
// is already queued, never blocking twice.
func (h *Hub) Receive(ctx context.Context, wait time.Duration) []Inbound {
	var out []Inbound
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case in := <-h.inbound:
		out = append(out, in)
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	case <-h.done:
		return nil
	}
	for {
		select {
		case in := <-h.inbound:
			out = append(out, in)
		default:
			return out
		}
	}
}

// Close stops every listener and waits for reader goroutines to exit.
func (h *Hub) Close() error {
	var errs []error
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		closers := h.closers
		h.closers = nil
		h.mu.Unlock()
		for _, c := range closers {
			if err := c.Close(); err != nil && !errors.Is(err, ErrClosed) {
				errs = append(errs, err)
			}
		}
		h.wg.Wait()
	})
	return errors.Join(errs...)
}

func (h *Hub) track(c io.Closer) {
	h.mu.Lock()
	h.closers = append(h.closers, c)
	h.mu.Unlock()
}

func (h *Hub) untrack(c io.Closer) {
	h.mu.Lock()
	for i, existing := range h.closers {
		if existing == c {
			h.closers = append(h.closers[:i:i], h.closers[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
}

func (h *Hub) closing() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// deliver hands an event to the loop unless the hub is shutting down.
func (h *Hub) deliver(in Inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// decode turns one received payload into an inbound event.
func (h *Hub) decode(conn Conn, data []byte) bool {
	if !h.budget.Allow(conn.Key(), len(data)) {
		h.logger.Debug("inbound budget exceeded", logging.String("session", conn.Key()), logging.Int("bytes", len(data)))
		return true
	}
	p, err := protocol.Unmarshal(data)
	if err != nil {
		h.metrics.ObserveDecodeError()
		return h.deliver(Inbound{Conn: conn, Err: err})
	}
	h.metrics.ObserveReceived(len(data))
	return h.deliver(Inbound{Conn: conn, Packet: p})
}

// peerGone reports the end of a connection and forgets its accounting.
func (h *Hub) peerGone(conn Conn, cause error) {
	h.budget.Forget(conn.Key())
	if errors.Is(cause, io.EOF) {
		cause = nil
	}
	h.deliver(Inbound{Conn: conn, Closed: true, Err: cause})
}

func (h *Hub) nextSerial() uint64 { return h.serial.Add(1) }

func (h *Hub) observeSent(conn Conn, p *protocol.Packet, n int) {
	h.metrics.ObserveSent(conn.Key(), p.PayloadType, n)
}

package transport

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"whiteshoe/server/internal/networking"
	"whiteshoe/server/internal/protocol"
)

func waitFor(t *testing.T, h *Hub, n int) []Inbound {
	t.Helper()
	var got []Inbound
	deadline := time.Now().Add(3 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		got = append(got, h.Receive(context.Background(), 50*time.Millisecond)...)
	}
	if len(got) < n {
		t.Fatalf("expected %d inbound events, got %d", n, len(got))
	}
	return got
}

func keepAlive(id uint64) *protocol.Packet {
	return &protocol.Packet{PacketID: id, PayloadType: protocol.PayloadKeepAlive}
}

func TestUDPRoundTrip(t *testing.T) {
	metrics := networking.NewTrafficMetrics()
	hub := NewHub(WithMetrics(metrics))
	defer hub.Close()
	addr, err := hub.ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write(protocol.Marshal(keepAlive(1))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := client.Write(protocol.Marshal(keepAlive(2))); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := waitFor(t, hub, 2)
	if got[0].Conn != got[1].Conn || got[0].Conn.Kind() != KindUDP {
		t.Fatalf("datagrams from one address must share a connection")
	}
	if got[0].Packet.PacketID != 1 || got[1].Packet.PacketID != 2 {
		t.Fatalf("order not preserved")
	}

	if err := got[0].Conn.Send(keepAlive(9)); err != nil {
		t.Fatalf("send: %v", err)
	}
	buf := make([]byte, 1024)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	reply, err := protocol.Unmarshal(buf[:n])
	if err != nil || reply.PacketID != 9 {
		t.Fatalf("unexpected reply %+v (%v)", reply, err)
	}
	totals := metrics.Totals()
	if totals.PacketsReceived != 2 || totals.PacketsSent != 1 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	if _, err := client.Write([]byte{0xff, 0xff}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	bad := waitFor(t, hub, 1)
	if bad[0].Err == nil || bad[0].Packet != nil {
		t.Fatalf("expected decode error, got %+v", bad[0])
	}
}

func TestTCPReassemblesFramesAndReportsClose(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	addr, err := hub.ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	stream := append(protocol.Encode(keepAlive(1)), protocol.Encode(keepAlive(2))...)
	if _, err := client.Write(stream[:3]); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := client.Write(stream[3:]); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := waitFor(t, hub, 2)
	if got[0].Packet.PacketID != 1 || got[1].Packet.PacketID != 2 {
		t.Fatalf("frames decoded out of order")
	}
	conn := got[0].Conn
	if conn.Kind() != KindTCP || !strings.HasPrefix(conn.Key(), "tcp:") {
		t.Fatalf("unexpected connection %s", conn.Key())
	}

	if err := conn.Send(keepAlive(7)); err != nil {
		t.Fatalf("send: %v", err)
	}
	header := make([]byte, protocol.HeaderSize)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(client, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	var frames protocol.FrameBuffer
	payloads, _ := frames.Feed(header)
	for len(payloads) == 0 {
		chunk := make([]byte, 64)
		n, err := client.Read(chunk)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		payloads, _ = frames.Feed(chunk[:n])
	}
	reply, err := protocol.Unmarshal(payloads[0])
	if err != nil || reply.PacketID != 7 {
		t.Fatalf("unexpected reply %+v (%v)", reply, err)
	}

	client.Close()
	closed := waitFor(t, hub, 1)
	if !closed[0].Closed || closed[0].Conn != conn || closed[0].Err != nil {
		t.Fatalf("expected clean close event, got %+v", closed[0])
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(hub.WebSocketHandler())
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if err := client.WriteMessage(websocket.BinaryMessage, protocol.Marshal(keepAlive(3))); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := waitFor(t, hub, 1)
	if got[0].Conn.Kind() != KindWS || got[0].Packet.PacketID != 3 {
		t.Fatalf("unexpected inbound %+v", got[0])
	}
	if err := got[0].Conn.Send(keepAlive(4)); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := client.ReadMessage()
	if err != nil || kind != websocket.BinaryMessage {
		t.Fatalf("read: %v", err)
	}
	reply, err := protocol.Unmarshal(data)
	if err != nil || reply.PacketID != 4 {
		t.Fatalf("unexpected reply %+v (%v)", reply, err)
	}
	if err := got[0].Conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := got[0].Conn.Send(keepAlive(5)); err != ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestReceiveTimesOutWhenIdle(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	start := time.Now()
	if got := hub.Receive(context.Background(), 20*time.Millisecond); got != nil {
		t.Fatalf("expected nothing, got %d events", len(got))
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("receive returned before its wait elapsed")
	}
}

func TestInboundBudgetDropsFlood(t *testing.T) {
	budget := networking.NewInboundBudget(1, nil)
	hub := NewHub(WithInboundBudget(budget))
	defer hub.Close()
	addr, err := hub.ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if _, err := client.Write(protocol.Marshal(keepAlive(1))); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for budget.Denied() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if budget.Denied() != 1 {
		t.Fatalf("expected the oversized read to be refused")
	}
}

func TestReviveReplacesClosedDatagramPeer(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	addr, err := hub.ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write(protocol.Marshal(keepAlive(1))); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := waitFor(t, hub, 1)[0].Conn
	if same, live := Revive(stale); !live || same != stale {
		t.Fatalf("an open peer must be kept")
	}
	_ = stale.Close()
	if err := stale.Send(keepAlive(2)); err != ErrClosed {
		t.Fatalf("expected ErrClosed from a closed peer, got %v", err)
	}

	fresh, live := Revive(stale)
	if !live || fresh == stale || fresh.Key() != stale.Key() {
		t.Fatalf("expected a fresh peer with the same key, got %v (%v)", fresh, live)
	}
	if err := fresh.Send(keepAlive(3)); err != nil {
		t.Fatalf("send on revived peer: %v", err)
	}
	buf := make([]byte, 1024)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply, err := protocol.Unmarshal(buf[:n]); err != nil || reply.PacketID != 3 {
		t.Fatalf("unexpected reply %+v (%v)", reply, err)
	}

	//1.- A later datagram from the same address lands on the revived peer.
	if _, err := client.Write(protocol.Marshal(keepAlive(4))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if next := waitFor(t, hub, 1)[0].Conn; next != fresh {
		t.Fatalf("later datagrams should share the revived peer")
	}
}

func TestReviveDropsClosedStream(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	addr, err := hub.ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if _, err := client.Write(protocol.Encode(keepAlive(1))); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn := waitFor(t, hub, 1)[0].Conn
	_ = conn.Close()
	if _, live := Revive(conn); live {
		t.Fatalf("a closed stream connection cannot host a session")
	}
}

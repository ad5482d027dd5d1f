package networking

import (
	"sync"

	"whiteshoe/server/internal/protocol"
)

// TrafficTotals is a point-in-time copy of the traffic counters.
type TrafficTotals struct {
	PacketsSent     int64
	PacketsReceived int64
	BytesSent       int64
	BytesReceived   int64
	DecodeErrors    int64
}

// TrafficMetrics tracks packet and byte counters for every session.
type TrafficMetrics struct {
	mu        sync.RWMutex
	totals    TrafficTotals
	bySession map[string]int64
	byPayload map[protocol.PayloadType]int64
}

// NewTrafficMetrics constructs an empty metrics tracker.
func NewTrafficMetrics() *TrafficMetrics {
	return &TrafficMetrics{
		bySession: make(map[string]int64),
		byPayload: make(map[protocol.PayloadType]int64),
	}
}

// ObserveSent records one outbound packet.
func (m *TrafficMetrics) ObserveSent(sessionKey string, payload protocol.PayloadType, bytes int) {
	if m == nil {
		return
	}
	if bytes < 0 {
		bytes = 0
	}
	m.mu.Lock()
	m.totals.PacketsSent++
	m.totals.BytesSent += int64(bytes)
	if sessionKey != "" {
		m.bySession[sessionKey] += int64(bytes)
	}
	m.byPayload[payload]++
	m.mu.Unlock()
}

// ObserveReceived records one inbound frame.
func (m *TrafficMetrics) ObserveReceived(bytes int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.totals.PacketsReceived++
	m.totals.BytesReceived += int64(bytes)
	m.mu.Unlock()
}

// ObserveDecodeError counts a frame that failed to decode.
func (m *TrafficMetrics) ObserveDecodeError() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.totals.DecodeErrors++
	m.mu.Unlock()
}

// ForgetSession removes the per-session gauge for a disconnected client.
func (m *TrafficMetrics) ForgetSession(sessionKey string) {
	if m == nil || sessionKey == "" {
		return
	}
	m.mu.Lock()
	delete(m.bySession, sessionKey)
	m.mu.Unlock()
}

// Totals returns the global counters.
func (m *TrafficMetrics) Totals() TrafficTotals {
	if m == nil {
		return TrafficTotals{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totals
}

// BytesPerSession returns a copy of the bytes sent to each live session.
func (m *TrafficMetrics) BytesPerSession() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bySession) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m.bySession))
	for key, bytes := range m.bySession {
		out[key] = bytes
	}
	return out
}

// PacketsByPayload returns a copy of the outbound packet count per payload type.
func (m *TrafficMetrics) PacketsByPayload() map[protocol.PayloadType]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[protocol.PayloadType]int64, len(m.byPayload))
	for payload, count := range m.byPayload {
		out[payload] = count
	}
	return out
}

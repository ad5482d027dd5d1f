package main

import "testing"

func TestEndpointURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		scheme  string
		address string
		want    string
	}{
		"udp_port_only":        {scheme: "udp", address: ":25008", want: "udp://localhost:25008"},
		"tcp_ipv4_any":         {scheme: "tcp", address: "0.0.0.0:25008", want: "tcp://localhost:25008"},
		"admin_loopback":       {scheme: "http", address: "127.0.0.1:25010", want: "http://127.0.0.1:25010"},
		"websocket_path":       {scheme: "ws", address: "[::]:25009", want: "ws://localhost:25009/ws"},
		"explicit_ipv6_custom": {scheme: "grpc", address: "[2001:db8::1]:9000", want: "grpc://[2001:db8::1]:9000"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := endpointURL(tc.scheme, tc.address)
			if got != tc.want {
				t.Fatalf("endpointURL(%q, %q) = %q, want %q", tc.scheme, tc.address, got, tc.want)
			}
		})
	}
}

func TestNormaliseHostPortNoPort(t *testing.T) {
	t.Parallel()

	if got := normaliseHostPort(""); got != "localhost" {
		t.Fatalf("expected localhost for empty address, got %q", got)
	}
}

package main

import (
	"fmt"
	"net"
	"strings"

	"whiteshoe/server/internal/transport"
)

// endpointURL renders a bound listener address the way clients should dial it.
// 1.- Wildcard hosts are shown as localhost so the log line is copy-pasteable.
// 2.- The WebSocket endpoint carries its upgrade path.
func endpointURL(scheme, address string) string {
	url := fmt.Sprintf("%s://%s", scheme, normaliseHostPort(address))
	if scheme == "ws" || scheme == "wss" {
		url += transport.WebSocketPath
	}
	return url
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	host = strings.TrimSpace(host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

//go:build !linux

package httpserver

import "net"

// cork is a no-op outside Linux: TCP_CORK is Linux-specific, and the
// platforms without it rely on Nagle's algorithm and bufio batching
// (see response.go) for the same effect closely enough.
func cork(conn net.Conn, on bool) {}

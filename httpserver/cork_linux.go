//go:build linux

package httpserver

import (
	"net"

	"golang.org/x/sys/unix"
)

// cork enables or disables TCP_CORK on conn for the duration of one
// response body, batching the status line, headers, and body chunks
// into as few segments as the kernel can manage instead of flushing a
// write per os/io.Writer call. Disabling it (cork(false)) forces out
// whatever is still buffered.
func cork(conn net.Conn, on bool) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	val := 0
	if on {
		val = 1
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, val)
	})
}

// Package httpserver implements the HTTP Connection Handler: a
// per-connection request parser, response writer, and the streaming
// loop that bridges an HTTP GET to the SOURCE role's framed commands.
// It speaks raw HTTP/1.x off the socket rather than using net/http,
// since the requests have to be read off a pipe-fed connection and
// pipelined by hand.
package httpserver

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rhttp/rhttp/config"
	"github.com/rhttp/rhttp/mimeguess"
	"github.com/rhttp/rhttp/pipe"
	"github.com/rhttp/rhttp/wire"
)

// errChunkUnavailable marks a GET_CHUNK reply carrying the source's -1
// filesystem-error sentinel: the file vanished, lost a permission, or
// otherwise failed to read on the source side between the initial size
// probe and this chunk. The wire protocol itself stayed in sync - the
// source answered the command it was asked - so this is a failure of
// one response, not of the shared pipe, and must never reach breakPipe.
var errChunkUnavailable = errors.New("httpserver: source reported a filesystem error for this chunk")

// Conn serves one accepted TCP connection, issuing framed commands over
// a shared Pipe for every GET it handles.
type Conn struct {
	net      net.Conn
	pipe     *pipe.Pipe
	settings *config.Settings
	id       uuid.UUID

	buf    [wire.MaxHeader]byte
	filled int

	pipeBroken bool
}

// NewConn wraps an accepted connection. settings and the pipe are shared
// across every Conn spawned by the Acceptor.
func NewConn(netConn net.Conn, p *pipe.Pipe, settings *config.Settings) *Conn {
	return &Conn{net: netConn, pipe: p, settings: settings, id: uuid.New()}
}

// breakPipe marks this connection's exchange as failed and closes the
// shared Pipe outright: a mid-command I/O error leaves the wire
// protocol out of sync for every connection sharing it, not just this
// one, so the Acceptor's watchPipe goroutine needs to see the hangup
// and stop accepting connections it can no longer satisfy.
func (c *Conn) breakPipe(err error) {
	c.pipeBroken = true
	c.pipe.Close()
	log.Printf("httpserver[%s]: pipe error: %v", c.id, err)
}

// Serve runs the read-parse-respond loop until the peer closes the
// connection, HTTP/1.0 ends it, or a Connection: close header was seen.
func (c *Conn) Serve() {
	defer c.net.Close()

	for {
		idx, status := c.awaitHeader()
		switch status {
		case awaitClosed:
			return
		case awaitOverflow:
			c.writeSimple("HTTP/1.1", 500)
			return
		case awaitTruncated:
			c.writeSimple("HTTP/1.1", 400)
			return
		}

		req, err := parseRequest(c.buf[:idx])
		if err != nil {
			c.writeSimple("HTTP/1.1", 400)
			return
		}

		if c.settings.Verbose {
			log.Printf("httpserver[%s]: %s %s %s", c.id, req.Method, req.Target, req.Version)
			for name, value := range req.Headers {
				log.Printf("httpserver[%s]: header %s: %s", c.id, name, value)
			}
		}

		cork(c.net, true)
		keepAlive := c.dispatch(req)
		cork(c.net, false)

		consumed := idx + len(headerEnd)
		remaining := copy(c.buf[:], c.buf[consumed:c.filled])
		c.filled = remaining

		if !keepAlive {
			return
		}
	}
}

const (
	awaitReady = iota
	awaitClosed
	awaitOverflow
	awaitTruncated
)

// awaitHeader reads from the socket until "\r\n\r\n" appears in the
// buffer, the buffer fills (awaitOverflow), or the peer goes away
// (awaitClosed for no bytes at all yet, awaitTruncated for a partial
// header).
func (c *Conn) awaitHeader() (idx int, status int) {
	idx = findHeaderEnd(c.buf[:c.filled])
	for idx < 0 {
		if c.filled == len(c.buf) {
			return 0, awaitOverflow
		}
		n, err := c.net.Read(c.buf[c.filled:])
		if n == 0 && err != nil {
			if c.filled == 0 {
				return 0, awaitClosed
			}
			return 0, awaitTruncated
		}
		c.filled += n
		idx = findHeaderEnd(c.buf[:c.filled])
	}
	return idx, awaitReady
}

// dispatch runs one request to completion and reports whether the
// connection should stay open for another pipelined request.
func (c *Conn) dispatch(req *Request) (keepAlive bool) {
	if req.Method != "GET" {
		c.writeStatus(req.Version, 501, "", nil)
		return false
	}

	closeRequested := false
	if v, ok := req.header("Connection"); ok && strings.EqualFold(string(v), "close") {
		closeRequested = true
	}
	keepAlive = req.Version == "HTTP/1.1" && !closeRequested

	c.handleGet(req)
	if c.pipeBroken {
		return false
	}
	return keepAlive
}

// handleGet resolves the request path against the configured prefix
// and dispatches to a directory redirect/listing or a file range
// response.
func (c *Conn) handleGet(req *Request) {
	path := req.Target
	if q := strings.IndexByte(path, '?'); q >= 0 {
		path = path[:q]
	}

	prefix := c.settings.ServerPrefix
	if path+"/" == prefix {
		c.redirect(req.Version, 302, prefix)
		return
	}
	if !strings.HasPrefix(path, prefix) {
		c.writeStatus(req.Version, 404, "", nil)
		return
	}
	rel := path[len(prefix):]

	c.pipe.Lock()
	size, err := c.getFileSize(rel)
	if err != nil {
		c.pipe.Unlock()
		c.breakPipe(err)
		return
	}

	if size == -2 {
		c.handleDirectory(req, rel) // still holding the pipe lock
		return
	}
	c.pipe.Unlock()

	if size < 0 {
		c.writeStatus(req.Version, 404, "", nil)
		return
	}

	c.handleFile(req, rel, size)
}

func (c *Conn) getFileSize(rel string) (int64, error) {
	if err := c.pipe.WriteBytes([]byte{wire.TagGetFileSize}); err != nil {
		return 0, err
	}
	if err := c.pipe.WriteVarBytes([]byte(rel)); err != nil {
		return 0, err
	}
	return c.pipe.ReadInt64()
}

// handleDirectory is entered with the pipe lock already held: the
// GET_FILE_SIZE probe and the follow-up LIST_DIR command run as one
// atomic exchange so no other connection's request can interleave.
func (c *Conn) handleDirectory(req *Request, rel string) {
	if !strings.HasSuffix(req.Target, "/") {
		c.pipe.Unlock()
		c.redirect(req.Version, 307, req.Target+"/")
		return
	}

	if err := c.pipe.WriteBytes([]byte{wire.TagListDir}); err != nil {
		c.pipe.Unlock()
		c.breakPipe(err)
		return
	}
	if err := c.pipe.WriteVarBytes([]byte(rel)); err != nil {
		c.pipe.Unlock()
		c.breakPipe(err)
		return
	}
	n, err := c.pipe.ReadInt64()
	if err != nil {
		c.pipe.Unlock()
		c.breakPipe(err)
		return
	}
	if n < 0 {
		c.pipe.Unlock()
		c.writeStatus(req.Version, 404, "", nil)
		return
	}
	page, err := c.pipe.ReadBytes(n)
	c.pipe.Unlock()
	if err != nil {
		c.breakPipe(err)
		return
	}
	c.writeStatus(req.Version, 200, "Content-Type: text/html\r\n", page)
}

// handleFile implements the Range-aware streaming response. It never
// holds the pipe lock across more than one GET_CHUNK exchange at a
// time, so other connections can interleave chunk requests between
// each piece of this one.
func (c *Conn) handleFile(req *Request, rel string, size int64) {
	start, stop, status := c.resolveRange(req, size)
	if status == 416 {
		c.writeStatus(req.Version, 416, fmt.Sprintf("Content-Range: bytes */%d\r\n", size), nil)
		return
	}

	contentType := mimeguess.Guess(rel)
	extra := fmt.Sprintf("Content-Type: %s\r\n", contentType)
	if status == 206 {
		extra += fmt.Sprintf("Content-Range: bytes %d-%d/%d\r\n", start, stop-1, size)
	}
	length := stop - start

	w := bufio.NewWriterSize(c.net, wire.MaxChunk)
	if err := writeHeaders(w, req.Version, status, extra, length); err != nil {
		return
	}

	for start < stop {
		want := stop - start
		if want > wire.MaxChunk {
			want = wire.MaxChunk
		}

		c.pipe.Lock()
		n, data, err := c.getChunk(rel, start, want)
		c.pipe.Unlock()
		if err == errChunkUnavailable {
			// Local to this response: the source is fine and every other
			// connection sharing the pipe must keep running.
			w.Flush()
			return
		}
		if err != nil {
			c.breakPipe(err)
			return
		}
		if n == 0 {
			c.breakPipe(wire.ErrEndOfStream)
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		start += n
	}
	w.Flush()
}

func (c *Conn) getChunk(rel string, offset, size int64) (int64, []byte, error) {
	if err := c.pipe.WriteBytes([]byte{wire.TagGetChunk}); err != nil {
		return 0, nil, err
	}
	if err := c.pipe.WriteVarBytes([]byte(rel)); err != nil {
		return 0, nil, err
	}
	if err := c.pipe.WriteInt64(offset); err != nil {
		return 0, nil, err
	}
	if err := c.pipe.WriteInt64(size); err != nil {
		return 0, nil, err
	}
	n, err := c.pipe.ReadInt64()
	if err != nil {
		return 0, nil, err
	}
	if n < 0 {
		return 0, nil, errChunkUnavailable
	}
	data, err := c.pipe.ReadBytes(n)
	if err != nil {
		return 0, nil, err
	}
	return n, data, nil
}

func (c *Conn) writeStatus(version string, code int, extraHeaders string, body []byte) {
	w := bufio.NewWriter(c.net)
	if err := writeResponse(w, version, code, extraHeaders, body); err != nil {
		log.Printf("httpserver[%s]: write error: %v", c.id, err)
	}
}

func (c *Conn) writeSimple(version string, code int) {
	c.writeStatus(version, code, "", nil)
}

func (c *Conn) redirect(version string, code int, location string) {
	c.writeStatus(version, code, fmt.Sprintf("Location: %s\r\n", location), nil)
}

// resolveRange parses a "Range: bytes=START-END" header. Anything
// outside that simple single-range grammar, or an absent header,
// yields the full 200 response; a parseable-but-invalid range yields
// 416 rather than an error.
func (c *Conn) resolveRange(req *Request, size int64) (start, stop int64, status int) {
	raw, present := req.header("Range")
	if !present {
		return 0, size, 200
	}
	value := string(raw)
	const prefix = "bytes="
	if !strings.HasPrefix(value, prefix) {
		return 0, size, 200
	}
	byteRange := value[len(prefix):]
	if strings.Contains(byteRange, ",") {
		return 0, size, 200
	}
	dash := strings.IndexByte(byteRange, '-')
	if dash < 0 {
		return 0, size, 200
	}
	startStr, endStr := byteRange[:dash], byteRange[dash+1:]
	if startStr == "" && endStr == "" {
		return 0, size, 200
	}

	start = 0
	if startStr != "" {
		v, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, size, 200
		}
		start = v
	}
	stop = size
	if endStr != "" {
		v, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, size, 200
		}
		stop = v + 1
	}

	if !(0 <= start && start < stop && stop <= size) {
		return 0, 0, 416
	}
	return start, stop, 206
}

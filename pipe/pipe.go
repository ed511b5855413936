// Package pipe implements the full-duplex framed channel (C1) that
// connects the SERVER role to the SOURCE role. A Pipe is a pair of byte
// streams plus a mutex the caller must hold across one command/response
// exchange; at most one command is ever in flight.
package pipe

import (
	"io"
	"sync"

	"github.com/rhttp/rhttp/wire"
)

// Pipe is a full-duplex byte channel shared by every HTTP connection
// handler and the source worker on the other end. Callers serialize
// command/response pairs with Lock/Unlock, the same discipline a
// replicated store uses to guard a shared peer connection with a mutex.
type Pipe struct {
	r io.ReadCloser
	w io.WriteCloser

	mutex sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an existing read side and write side into a Pipe.
func New(r io.ReadCloser, w io.WriteCloser) *Pipe {
	return &Pipe{r: r, w: w, closed: make(chan struct{})}
}

// Lock acquires the exclusive right to run one command/response exchange.
func (p *Pipe) Lock() { p.mutex.Lock() }

// Unlock releases the exchange lock.
func (p *Pipe) Unlock() { p.mutex.Unlock() }

// ReadBytes reads exactly n bytes, n in [0, wire.MaxChunk].
func (p *Pipe) ReadBytes(n int64) ([]byte, error) { return wire.ReadBytes(p.r, n) }

// ReadVarBytes reads a length-prefixed byte string.
func (p *Pipe) ReadVarBytes() ([]byte, error) { return wire.ReadVarBytes(p.r) }

// ReadInt64 reads a big-endian signed 64-bit integer.
func (p *Pipe) ReadInt64() (int64, error) { return wire.ReadInt64(p.r) }

// ReadInt32 reads a big-endian signed 32-bit integer.
func (p *Pipe) ReadInt32() (int32, error) { return wire.ReadInt32(p.r) }

// WriteBytes writes s in full.
func (p *Pipe) WriteBytes(s []byte) error { return wire.WriteBytes(p.w, s) }

// WriteVarBytes writes a length-prefixed byte string.
func (p *Pipe) WriteVarBytes(s []byte) error { return wire.WriteVarBytes(p.w, s) }

// WriteInt64 writes a big-endian signed 64-bit integer.
func (p *Pipe) WriteInt64(i int64) error { return wire.WriteInt64(p.w, i) }

// WriteInt32 writes a big-endian signed 32-bit integer.
func (p *Pipe) WriteInt32(i int32) error { return wire.WriteInt32(p.w, i) }

// Closed returns a channel that is closed once MarkClosed or Close has
// been called; the Pipe does not watch its read side for hangup by
// itself. The acceptor waits on this to know when to exit.
func (p *Pipe) Closed() <-chan struct{} { return p.closed }

// MarkClosed records that the read side has hung up. Callers that detect
// EOF on Pipe's read methods should call this once before exiting.
func (p *Pipe) MarkClosed() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// Close closes both sides of the pipe.
func (p *Pipe) Close() error {
	p.MarkClosed()
	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

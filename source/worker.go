// Package source implements the SOURCE role: it answers framed commands
// coming over the pipe by touching the filesystem rooted at a confined
// directory.
package source

import (
	"errors"
	"io"
	"log"
	"os"

	"github.com/rhttp/rhttp/pipe"
	"github.com/rhttp/rhttp/wire"
)

// Worker runs the SOURCE role's command loop against a confined root.
type Worker struct {
	Pipe    *pipe.Pipe
	Root    string // absolute, trailing-slash
	Verbose bool
}

// NewWorker constructs a Worker rooted at root, which must already be an
// absolute, existing, trailing-slash directory; the caller enforces that
// invariant at start-up, before Run is ever reached.
func NewWorker(p *pipe.Pipe, root string, verbose bool) *Worker {
	return &Worker{Pipe: p, Root: root, Verbose: verbose}
}

// Run executes the SOURCE state machine: read one tag byte, dispatch,
// repeat, until an unknown tag ends the loop cleanly or a protocol
// violation ends it with an error. Only one command is ever in flight,
// by construction: Run never starts reading the next tag until the
// current command's reply has been fully written.
func (w *Worker) Run() error {
	if w.Verbose {
		if stop, err := w.startWatch(); err == nil {
			defer stop()
		} else {
			log.Printf("source: diagnostic watch disabled: %v", err)
		}
	}

	for {
		tag, err := w.Pipe.ReadBytes(1)
		if err != nil {
			// The pipe hung up between commands: that is the normal
			// way this loop ends, not a protocol violation.
			w.Pipe.MarkClosed()
			if errors.Is(err, wire.ErrEndOfStream) {
				return nil
			}
			return err
		}

		switch tag[0] {
		case wire.TagGetChunk:
			if err := w.handleGetChunk(); err != nil {
				return err
			}
		case wire.TagGetFileSize:
			if err := w.handleGetFileSize(); err != nil {
				return err
			}
		case wire.TagListDir:
			if err := w.handleListDir(); err != nil {
				return err
			}
		default:
			// Unknown tag: terminate the loop cleanly.
			return nil
		}
	}
}

func (w *Worker) handleGetFileSize() error {
	rawPath, err := w.Pipe.ReadVarBytes()
	if err != nil {
		return err
	}

	resolved, err := resolve(w.Root, string(rawPath))
	if err != nil {
		return w.Pipe.WriteInt64(-1)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return w.Pipe.WriteInt64(-1)
	}
	if info.IsDir() {
		return w.Pipe.WriteInt64(-2)
	}
	return w.Pipe.WriteInt64(info.Size())
}

func (w *Worker) handleGetChunk() error {
	rawPath, err := w.Pipe.ReadVarBytes()
	if err != nil {
		return err
	}
	offset, err := w.Pipe.ReadInt64()
	if err != nil {
		return err
	}
	size, err := w.Pipe.ReadInt64()
	if err != nil {
		return err
	}
	if size < 0 || size > wire.MaxChunk {
		return wire.ErrProtocolViolation
	}

	resolved, err := resolve(w.Root, string(rawPath))
	if err != nil {
		return w.Pipe.WriteInt64(-1)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return w.Pipe.WriteInt64(-1)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return w.Pipe.WriteInt64(-1)
	}

	buf := make([]byte, size)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return w.Pipe.WriteInt64(-1)
	}

	if err := w.Pipe.WriteInt64(int64(n)); err != nil {
		return err
	}
	return w.Pipe.WriteBytes(buf[:n])
}

func (w *Worker) handleListDir() error {
	rawPath, err := w.Pipe.ReadVarBytes()
	if err != nil {
		return err
	}

	resolved, err := resolve(w.Root, string(rawPath))
	if err != nil {
		return w.Pipe.WriteInt64(-1)
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return w.Pipe.WriteInt64(-1)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return w.Pipe.WriteInt64(-1)
	}

	page, err := renderIndex(resolved, entries)
	if err != nil || len(page) > wire.MaxChunk {
		return w.Pipe.WriteInt64(-1)
	}

	return w.Pipe.WriteVarBytes(page)
}

// Package wire implements the byte-level encoding shared by the pipe
// between the SERVER and SOURCE roles: big-endian integers and
// length-prefixed ("var-bytes") byte strings.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxChunk bounds any single payload that crosses the pipe.
const MaxChunk = 4096 * 8

// MaxHeader bounds a single HTTP request's header block.
const MaxHeader = 4096

// Command tags, sent as the first byte of every request on the pipe.
const (
	TagGetChunk    byte = 'a'
	TagGetFileSize byte = 'b'
	TagListDir     byte = 'c'
)

// ErrProtocolViolation marks a command that breaks the pipe protocol,
// such as a GET_CHUNK size above MaxChunk. The codec functions below
// report oversize or negative lengths as ErrOutOfRange instead.
var ErrProtocolViolation = errors.New("wire: protocol violation")

// ErrOutOfRange marks a length or offset outside the permitted bounds.
var ErrOutOfRange = errors.New("wire: value out of range")

// ErrEndOfStream marks a short read: the peer closed mid-frame.
var ErrEndOfStream = errors.New("wire: unexpected end of stream")

// ReadBytes reads exactly n bytes from r, or returns ErrEndOfStream.
// n must be in [0, MaxChunk].
func ReadBytes(r io.Reader, n int64) ([]byte, error) {
	if n < 0 || n > MaxChunk {
		return nil, fmt.Errorf("%w: length %d", ErrOutOfRange, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrEndOfStream
		}
		return nil, err
	}
	return buf, nil
}

// ReadVarBytes reads an 8-byte big-endian length followed by that many
// bytes. The length must be in [0, MaxChunk].
func ReadVarBytes(r io.Reader) ([]byte, error) {
	n, err := ReadInt64(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > MaxChunk {
		return nil, fmt.Errorf("%w: length %d", ErrOutOfRange, n)
	}
	return ReadBytes(r, n)
}

// ReadInt64 reads a big-endian signed 64-bit integer.
func ReadInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, ErrEndOfStream
		}
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// ReadInt32 reads a big-endian signed 32-bit integer.
func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, ErrEndOfStream
		}
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// WriteBytes writes s in full.
func WriteBytes(w io.Writer, s []byte) error {
	_, err := w.Write(s)
	return err
}

// WriteVarBytes writes len(s) as a big-endian int64 followed by s.
func WriteVarBytes(w io.Writer, s []byte) error {
	if len(s) > MaxChunk {
		return fmt.Errorf("%w: length %d", ErrOutOfRange, len(s))
	}
	if err := WriteInt64(w, int64(len(s))); err != nil {
		return err
	}
	return WriteBytes(w, s)
}

// WriteInt64 writes i as a big-endian signed 64-bit integer.
func WriteInt64(w io.Writer, i int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(i))
	return WriteBytes(w, buf[:])
}

// WriteInt32 writes i as a big-endian signed 32-bit integer.
func WriteInt32(w io.Writer, i int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(i))
	return WriteBytes(w, buf[:])
}

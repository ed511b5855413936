package pipe

import "io"

// NewLocalPair returns two connected Pipes backed by in-memory byte
// streams, for the single-process deployment where both the SERVER and
// SOURCE roles run in the same binary. Whatever is written to one side's
// write stream appears on the other side's read stream, using the
// stdlib's own synchronous in-memory pipe (io.Pipe) rather than a
// third-party queue — see DESIGN.md for why no pack dependency improves
// on it here.
func NewLocalPair() (server *Pipe, source *Pipe) {
	serverR, sourceW := io.Pipe()
	sourceR, serverW := io.Pipe()
	server = New(serverR, serverW)
	source = New(sourceR, sourceW)
	return server, source
}

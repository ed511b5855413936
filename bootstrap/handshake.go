package bootstrap

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rhttp/rhttp/config"
	"github.com/rhttp/rhttp/pipe"
)

// session is the remote-shell child process plus its stdio, kept open
// for the lifetime of the pipe it carries.
type session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (s *session) close() {
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// spawn invokes the configured remote-shell command against host,
// attaching the shim script as its payload. Only the program-image
// digest is computed here, to embed as magicHex in the shim; handshake
// reads and hashes the image again before writing it over the pipe.
func spawn(settings *config.Settings, host string) (*session, error) {
	magic, _, err := digestImage()
	if err != nil {
		return nil, fmt.Errorf("reading program image: %w", err)
	}
	magicHex := hex.EncodeToString(magic[:])

	args := append([]string{}, settings.SSHCommand[1:]...)
	args = append(args, host, shimScript(magicHex, len(magic)))

	cmd := exec.Command(settings.SSHCommand[0], args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &session{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// handshake runs the identity exchange over an already-spawned
// session: write the magic digest, the program image, and the encoded
// settings in order, then read the magic digest back and compare.
// remoteRole is encoded into the settings payload so the peer's shim
// knows which role to start once it has verified and unpacked the
// image.
func handshake(s *session, settings *config.Settings, remoteRole role) (*pipe.Pipe, error) {
	magic, image, err := digestImage()
	if err != nil {
		return nil, fmt.Errorf("reading program image: %w", err)
	}

	encodedSettings, err := encodeSettings(settings, remoteRole)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}

	if _, err := s.stdin.Write(magic[:]); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}
	if err := writeFramed(s.stdin, image); err != nil {
		return nil, fmt.Errorf("writing program image: %w", err)
	}
	if err := writeFramed(s.stdin, encodedSettings); err != nil {
		return nil, fmt.Errorf("writing settings: %w", err)
	}

	echoed := make([]byte, len(magic))
	if _, err := io.ReadFull(s.stdout, echoed); err != nil {
		return nil, fmt.Errorf("reading identity echo: %w", err)
	}
	if !bytes.Equal(echoed, magic[:]) {
		return nil, fmt.Errorf("identity mismatch: remote did not echo back the expected program digest")
	}

	return pipe.New(s.stdout, s.stdin), nil
}

// writeFramed writes a netstring-style frame the peer's shim script
// can split without decoding a binary integer: a decimal byte count, a
// newline, then exactly that many bytes.
func writeFramed(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "%d\n", len(payload)); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// encodeSettings is the deterministic encoding of the settings handed
// to the remote peer. JSON gives a deterministic field order for a
// fixed struct without hand-rolling a canonical form.
func encodeSettings(settings *config.Settings, remoteRole role) ([]byte, error) {
	payload := shimPayload{
		Role:         remoteRole,
		SourceRoot:   settings.SourceRoot,
		ServerPrefix: settings.ServerPrefix,
		HTTPHost:     settings.HTTPHost,
		HTTPPort:     settings.HTTPPort,
		Verbose:      settings.Verbose,
	}
	return json.Marshal(payload)
}

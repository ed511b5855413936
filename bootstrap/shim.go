package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rhttp/rhttp/acceptor"
	"github.com/rhttp/rhttp/config"
	"github.com/rhttp/rhttp/pipe"
	"github.com/rhttp/rhttp/source"
)

// shimPayload is the settings handed to a remote peer once its program
// image has been verified, encoded as JSON by encodeSettings and
// decoded by RunShim. Role tells the peer which half of the program to
// start; the remaining fields are exactly what that half needs.
type shimPayload struct {
	Role         role   `json:"role"`
	SourceRoot   string `json:"source_root"`
	ServerPrefix string `json:"server_prefix"`
	HTTPHost     string `json:"http_host"`
	HTTPPort     uint16 `json:"http_port"`
	Verbose      bool   `json:"verbose"`
}

// shimScript returns the tiny peer-side program the handshake needs:
// read len(magic) bytes, compare them against a literal copy of magic
// baked into the command line, then read two netstring-style frames -
// a decimal byte count, a newline, then that many bytes - one for the
// program image and one for the settings payload. It writes the image
// to a temporary file, makes it executable, echoes the magic back so
// the caller knows the peer is ready, and execs the program with the
// settings file's path as its single argument. It depends on nothing
// beyond head, od, tr, cat, chmod, rm, read and sh, present on any POSIX
// peer a remote-shell command can reach.
//
// The length-then-newline framing lets the shell's read builtin find
// each frame's boundary without decoding the big-endian integers the
// pipe's own wire format uses elsewhere; a raw byte count would leave
// the shim with no way to tell where the image ends and the settings
// begin.
//
// magicHex is the lowercase hex SHA1 digest of the program image; it is
// embedded in the command line so the peer can fail fast on a
// mismatched image without ever having to execute the payload.
func shimScript(magicHex string, magicLen int) string {
	tmp := "/tmp/.rhttp-$$"
	var b strings.Builder
	fmt.Fprintf(&b, "sh -c '")
	fmt.Fprintf(&b, "m=%s; p=%s; s=%s; ", tmp+".m", tmp+".p", tmp+".s")
	fmt.Fprintf(&b, "head -c %d >$m; ", magicLen)
	fmt.Fprintf(&b, "got=$(od -An -tx1 $m | tr -d \" \\n\"); ")
	fmt.Fprintf(&b, "if [ \"$got\" != \"%s\" ]; then rm -f $m; exit 1; fi; ", magicHex)
	fmt.Fprintf(&b, "read -r ilen; head -c \"$ilen\" >$p; ")
	fmt.Fprintf(&b, "read -r slen; head -c \"$slen\" >$s; ")
	fmt.Fprintf(&b, "chmod +x $p; ")
	fmt.Fprintf(&b, "cat $m; ")
	fmt.Fprintf(&b, "exec $p --bootstrap-settings=$s")
	fmt.Fprintf(&b, "'")
	return b.String()
}

// RunShim is the entry point the shim script execs into once it has
// verified the program image, staged it as the running binary, and
// written the verified settings payload to settingsPath. It decodes
// that payload and runs the role it names against this process's own
// stdin/stdout, which the remote-shell tunnel has already wired back
// to the local process's handshake pipe.
func RunShim(settingsPath string) error {
	raw, err := os.ReadFile(settingsPath)
	if err != nil {
		return fmt.Errorf("bootstrap: reading settings payload: %w", err)
	}
	os.Remove(settingsPath)

	var payload shimPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("bootstrap: decoding settings payload: %w", err)
	}

	settings := &config.Settings{
		SourceRoot:   payload.SourceRoot,
		ServerPrefix: payload.ServerPrefix,
		HTTPHost:     payload.HTTPHost,
		HTTPPort:     payload.HTTPPort,
		Verbose:      payload.Verbose,
	}

	p := pipe.New(os.Stdin, os.Stdout)
	switch payload.Role {
	case roleSource:
		info, err := os.Stat(settings.SourceRoot)
		if err != nil {
			return fmt.Errorf("bootstrap: source root %q: %w", settings.SourceRoot, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("bootstrap: source root %q is not a directory", settings.SourceRoot)
		}
		return source.NewWorker(p, settings.SourceRoot, settings.Verbose).Run()
	case roleServer:
		a, err := acceptor.New(settings, p)
		if err != nil {
			return fmt.Errorf("bootstrap: listen: %w", err)
		}
		a.Run()
		return nil
	default:
		return fmt.Errorf("bootstrap: unknown role %q in settings payload", payload.Role)
	}
}

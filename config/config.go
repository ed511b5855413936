// Package config builds the immutable Settings used by every other
// package: flags and environment are read once at start-up with viper,
// validated, and handed out as a plain value from then on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings is the immutable configuration shared by every component.
// Once constructed by Load it never changes.
type Settings struct {
	HTTPHost string
	HTTPPort uint16

	// SourceRoot is the absolute filesystem path the SOURCE role is
	// rooted at. Always ends with "/".
	SourceRoot string
	// SourceHost is the optional [user@]host the SOURCE role runs on.
	// Empty means the SOURCE role runs locally.
	SourceHost string
	SourceUser string

	// ServerPrefix is the URL path prefix the tree is exposed under.
	// Always begins and ends with "/".
	ServerPrefix string
	// ServerHost is the optional host the SERVER (HTTP listener) role
	// runs on. Empty means the SERVER role runs locally.
	ServerHost string
	ServerUser string

	Verbose    bool
	SSHCommand []string
}

// IsRemote reports whether either role runs on a different host than
// the process that parsed these Settings.
func (s *Settings) IsRemote() bool {
	return s.SourceHost != "" || s.ServerHost != ""
}

// Validate enforces the configuration invariants: exactly one of
// {source_host, server_host} may be set, the prefix and root both
// carry their mandated slashes, and a locally-rooted source tree must
// already exist as a directory - a mistyped or missing path fails
// here instead of turning into a 404 on the first request.
func (s *Settings) Validate() error {
	if s.SourceHost != "" && s.ServerHost != "" {
		return fmt.Errorf("config: at most one of source/server may be remote")
	}
	if !strings.HasSuffix(s.SourceRoot, "/") {
		return fmt.Errorf("config: source root must end with '/'")
	}
	if s.SourceHost == "" {
		info, err := os.Stat(s.SourceRoot)
		if err != nil {
			return fmt.Errorf("config: source root %q: %w", s.SourceRoot, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("config: source root %q is not a directory", s.SourceRoot)
		}
	}
	if !strings.HasPrefix(s.ServerPrefix, "/") || !strings.HasSuffix(s.ServerPrefix, "/") {
		return fmt.Errorf("config: server prefix must begin and end with '/'")
	}
	if s.HTTPHost == "" {
		return fmt.Errorf("config: http host is required")
	}
	if len(s.SSHCommand) == 0 {
		return fmt.Errorf("config: ssh command is required")
	}
	return nil
}

// endpoint is a parsed "[user@]host:path" CLI token.
type endpoint struct {
	User string
	Host string
	Path string
}

// parseEndpoint splits "[user@]host:path" or a bare local path/prefix.
// A bare Windows-style drive path ("C:\...") never appears on the
// POSIX-oriented hosts this tool targets, so any single colon splits
// host from path.
func parseEndpoint(tok string) endpoint {
	var e endpoint
	rest := tok
	if at := strings.IndexByte(rest, '@'); at >= 0 && strings.IndexByte(rest, ':') > at {
		e.User = rest[:at]
		rest = rest[at+1:]
	}
	if colon := strings.IndexByte(rest, ':'); colon >= 0 {
		e.Host = rest[:colon]
		e.Path = rest[colon+1:]
	} else {
		e.Path = rest
	}
	return e
}

// Load parses CLI flags and positional arguments into Settings. args
// excludes the program name, matching flag.CommandLine / pflag
// convention.
func Load(args []string) (*Settings, error) {
	fs := pflag.NewFlagSet("rhttp", pflag.ContinueOnError)
	fs.String("host", "localhost", "HTTP listen host")
	fs.Uint32("port", 8000, "HTTP listen port")
	fs.String("ssh-command", "ssh", "remote shell command used to reach a remote role")
	fs.Bool("verbose", false, "echo request headers to the diagnostic stream")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("RHTTP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlag("host", fs.Lookup("host")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("port", fs.Lookup("port")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("ssh-command", fs.Lookup("ssh-command")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("verbose", fs.Lookup("verbose")); err != nil {
		return nil, err
	}

	positional := fs.Args()
	if len(positional) < 1 {
		return nil, fmt.Errorf("config: SOURCE argument is required")
	}

	src := parseEndpoint(positional[0])
	s := &Settings{
		HTTPHost:     v.GetString("host"),
		HTTPPort:     uint16(v.GetUint32("port")),
		Verbose:      v.GetBool("verbose"),
		SSHCommand:   splitShellWords(v.GetString("ssh-command")),
		SourceHost:   src.Host,
		SourceUser:   src.User,
		ServerPrefix: "/",
	}
	s.SourceRoot = normalizeRoot(src.Path)

	if len(positional) >= 2 && positional[1] != "" {
		srv := parseEndpoint(positional[1])
		s.ServerHost = srv.Host
		s.ServerUser = srv.User
		if srv.Path != "" {
			s.ServerPrefix = normalizePrefix(srv.Path)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func normalizeRoot(p string) string {
	if p == "" {
		p = "."
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	if !strings.HasSuffix(abs, "/") {
		abs += "/"
	}
	return abs
}

func normalizePrefix(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// splitShellWords splits a command line the way a POSIX shell would for
// the simple case the --ssh-command flag needs: words separated by
// whitespace, no quoting support beyond that.
func splitShellWords(s string) []string {
	return strings.Fields(s)
}

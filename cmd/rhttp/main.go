// Command rhttp serves a directory tree over HTTP, with the HTTP
// listener and the file I/O optionally split across two hosts by a
// remote-shell tunnel.
package main

import (
	"log"
	"os"
	"strings"

	"github.com/rhttp/rhttp/bootstrap"
	"github.com/rhttp/rhttp/config"
)

func main() {
	if path, ok := shimSettingsPath(os.Args[1:]); ok {
		if err := bootstrap.RunShim(path); err != nil {
			log.Fatal(err)
		}
		return
	}

	settings, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if err := bootstrap.Run(settings); err != nil {
		log.Fatal(err)
	}
}

// shimSettingsPath recognizes the one flag the remote handshake's shim
// script invokes this same binary with once it has verified the
// program image and staged the settings payload on disk. It is
// checked before config.Load because this invocation already carries
// a decoded Settings-to-be and has no SOURCE positional argument of
// its own.
func shimSettingsPath(args []string) (string, bool) {
	const prefix = "--bootstrap-settings="
	if len(args) == 1 && strings.HasPrefix(args[0], prefix) {
		return strings.TrimPrefix(args[0], prefix), true
	}
	return "", false
}

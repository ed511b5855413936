// Package bootstrap decides whether this process runs both roles
// locally or spawns the opposite role on a remote host, and in the
// remote case runs the handshake that proves the remote peer is
// running the byte-identical program image before handing it any
// settings.
package bootstrap

import (
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/rhttp/rhttp/acceptor"
	"github.com/rhttp/rhttp/config"
	"github.com/rhttp/rhttp/pipe"
	"github.com/rhttp/rhttp/source"
)

// State is one step of the bootstrap state machine.
type State int

const (
	Spawned State = iota
	IdentitySent
	IdentityVerified
	Running
	Terminating
)

func (s State) String() string {
	switch s {
	case Spawned:
		return "SPAWNED"
	case IdentitySent:
		return "IDENTITY_SENT"
	case IdentityVerified:
		return "IDENTITY_VERIFIED"
	case Running:
		return "RUNNING"
	case Terminating:
		return "TERMINATING"
	default:
		return "UNKNOWN"
	}
}

// Run decides the deployment shape from settings and blocks until the
// serving side of it exits: forever in the ordinary case, or with an
// error the moment something fatal happens (protocol violation on the
// pipe, identity mismatch, remote-shell failure).
func Run(settings *config.Settings) error {
	if !settings.IsRemote() {
		return runLocal(settings)
	}
	return runRemote(settings)
}

// runLocal wires both roles together over an in-memory pipe, running
// both roles in this one process.
func runLocal(settings *config.Settings) error {
	serverSide, sourceSide := pipe.NewLocalPair()

	worker := source.NewWorker(sourceSide, settings.SourceRoot, settings.Verbose)
	workerErr := make(chan error, 1)
	go func() { workerErr <- worker.Run() }()

	a, err := acceptor.New(settings, serverSide)
	if err != nil {
		return fmt.Errorf("bootstrap: listen: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		log.Printf("bootstrap: interrupted, closing pipe")
		serverSide.Close()
	}()

	go a.Run()

	if err := <-workerErr; err != nil {
		a.Close()
		return fmt.Errorf("bootstrap: source worker: %w", err)
	}
	return nil
}

// runRemote spawns the opposite role on the named remote host through
// the configured remote-shell command, runs the identity handshake,
// and then runs this process's own role against the verified pipe.
func runRemote(settings *config.Settings) error {
	remoteHost, remoteRole, localRole := remoteTopology(settings)

	session, err := spawn(settings, remoteHost)
	if err != nil {
		return fmt.Errorf("bootstrap: spawn %s on %s: %w", remoteRole, remoteHost, err)
	}
	defer session.close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		log.Printf("bootstrap: interrupted, terminating remote-shell child")
		session.close()
	}()

	p, err := handshake(session, settings, remoteRole)
	if err != nil {
		return fmt.Errorf("bootstrap: handshake: %w", err)
	}

	switch localRole {
	case roleSource:
		worker := source.NewWorker(p, settings.SourceRoot, settings.Verbose)
		return worker.Run()
	case roleServer:
		a, err := acceptor.New(settings, p)
		if err != nil {
			return fmt.Errorf("bootstrap: listen: %w", err)
		}
		a.Run()
		return nil
	default:
		return fmt.Errorf("bootstrap: unknown local role %q", localRole)
	}
}

type role string

const (
	roleSource role = "source"
	roleServer role = "server"
)

// remoteTopology applies the rule that exactly one of {source_host,
// server_host} is set: the local process plays whichever role is NOT
// named, and the remote process plays the one that is.
func remoteTopology(settings *config.Settings) (remoteHost string, remoteRole, localRole role) {
	if settings.SourceHost != "" {
		return settings.SourceHost, roleSource, roleServer
	}
	return settings.ServerHost, roleServer, roleSource
}

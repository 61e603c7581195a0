// Package cli defines the initd CLI.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tjper/initd/internal/supervisor"
)

var (
	keyFlag    = flag.String("key", "", "path to server private key")
	certFlag   = flag.String("cert", "", "path to server certificate")
	caCertFlag = flag.String("ca_cert", "", "path to CA certificate")
	portFlag   = flag.Int("port", 8080, "port to serve the supervisor control API")
)

const (
	ecSuccess = iota
	// ecUnrecognized indicates the subcommand was not recognized.
	ecUnrecognized
	// ecConfig indicates runtime configuration could not be resolved.
	ecConfig
	// ecTLSConfig indicates the TLS config was not setup properly.
	ecTLSConfig
	// ecListen indicates the control API was unable to listen.
	ecListen
	// ecServe indicates the control API was unable to serve its content.
	ecServe
)

const (
	// serveSub is the subcommand used to serve the control API.
	serveSub = "serve"
)

// Run is the entrypoint of the initd CLI.
func Run() int {
	flag.Parse()

	if len(os.Args) < 2 {
		return help("Too few arguments")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	last := len(os.Args) - 1
	switch v := os.Args[last]; v {
	case serveSub:
		return runServe(ctx)
	case supervisor.Reexec:
		return runReexec(ctx)
	default:
		return help(fmt.Sprintf("Unrecognized subcommand \"%s\".", v))
	}
}

// help outputs a general overview of the initd executable to the user. The
// text argument may be used to add a detailed help message.
func help(text string) int {
	var b strings.Builder
	if text != "" {
		_, _ = b.WriteString(fmt.Sprintf("\nNotice: %s", text))
	}

	b.WriteString(
		`

initd runs job classes as an event-driven process supervisor: classes
start and stop in response to named events, and a gRPC control API exposes
Start/Stop/Restart/EmitEvent and lifecycle notifications.

Usage:
  initd [global flags] command

Available Commands:
  serve       Serve the supervisor control API.
  reexec      Become a spawned job's process image. Should not be called
              directly.

Global Flags:
  -port       port to serve the control API
  -cert       server x509 certificate
  -key        server private key
  -ca_cert    certificate authority cert
`)
	fmt.Fprint(os.Stdout, b.String())
	return ecUnrecognized
}

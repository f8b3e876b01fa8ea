// Package main is the entry point for the Annotator server.
//
// EDUCATIONAL CONTEXT:
// The server owns one annotation session. The browser overlay reports pointer
// events and page context over JSON; the server runs every state transition,
// enriches change requests from the component catalog, persists the session in
// SQLite and ships pending change requests to the configured endpoint.
//
// ARCHITECTURE NOTE:
// - 'cmd/server' contains the application assembly and startup logic.
// - 'internal/handler' contains the HTTP transport layer.
// - 'internal/session' is the state machine; 'internal/binding' adapts it per element.
// - 'internal/repository' contains the data persistence logic.
// - 'internal/model' contains the domain data structures.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "annotator",
		Usage:   "Collect in-page UI change requests and ship them for processing",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"ANNOTATOR_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			checkCatalogCommand(),
		},
		// Running without a command starts the server.
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

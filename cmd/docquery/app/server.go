// Package app provides the docquery server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/docquery/cmd/docquery/app/options"
	"github.com/kart-io/docquery/internal/docquery"
	"github.com/kart-io/docquery/pkg/infra/app"
)

// commandDesc is the description of the command.
const commandDesc = `docquery answers questions about PDF documents.

Each query downloads the given PDFs, extracts and chunks their text, builds a
transient vector index, retrieves the most relevant passages and asks a chat
model to answer from them.

This server provides:
  - POST /query       asynchronous queries tracked as jobs
  - GET  /jobs/:id    job status and results
  - POST /query-sync  synchronous queries`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(docquery.Name),
		app.WithShortDescription("PDF question answering service"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return server.Run(ctx)
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}

package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd runs the monitor loop and the HTTP API.
func ServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor loop and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	ln, err := net.Listen("tcp", app.Config.HTTPAddr)
	if err != nil {
		return err
	}
	return serveApp(ctx, app, ln)
}

// serveApp runs the monitor loop and serves the API on ln until ctx is done.
// It returns only after the monitor loop has stopped, so storage can be closed.
func serveApp(ctx context.Context, app *App, ln net.Listener) error {
	handler, err := app.Handler()
	if err != nil {
		_ = ln.Close()
		return err
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// open event streams end when the server starts shutting down
	server.RegisterOnShutdown(app.Feed.Close)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		app.Monitor.Start(monitorCtx)
	}()
	defer func() {
		stopMonitor()
		<-monitorDone
	}()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Printf("http listening on %s", ln.Addr())
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	app.logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

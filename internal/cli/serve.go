package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/browserfetch/internal/logging"
	"github.com/raysh454/browserfetch/internal/server"
)

func (c *rootCommand) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session and fetch API over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApplication(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Shutdown(context.Background()) }()

			if cmd.Flags().Changed("listen") {
				a.Config.Server.ListenAddr = listen
			}
			srv, err := server.NewServer(server.Config{
				ListenAddr: a.Config.Server.ListenAddr,
				Sessions:   a.Sessions,
				Logger:     a.Logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, srv.HTTPServer(), a.Logger)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from config, 127.0.0.1:8080)")
	return cmd
}

// run serves until ctx ends, then shuts the server down gracefully.
func run(ctx context.Context, hs *http.Server, logger logging.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.F("addr", hs.Addr))
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

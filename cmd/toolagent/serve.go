package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/michaelbrown/toolagent/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the toolagent HTTP API",
	Long: `Load the tool servers once and serve the REST and WebSocket API under /api.

Examples:
  toolagent serve
  toolagent serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.store == nil {
		return fmt.Errorf("serve needs the run store at %s", s.cfg.Storage.DBPath)
	}

	port := s.cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(s.cfg, s.store, s.runner, s.toolset)
	slog.Info("tools loaded", "servers", len(s.toolset.Outcomes), "failed", len(s.toolset.Failed()), "allowed", len(s.toolset.Tools))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/mailsaver/internal/api"
	"github.com/wesm/mailsaver/internal/store"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a development server for the remote collection API",
	Long: `Run an HTTP server implementing the remote collection API on top of a
local SQLite database. Search results come from the directory table, which
can be filled with 'mailsaver directory add'.

Binding to a non-loopback address requires [server] jwt_secret in
config.toml.

Use Ctrl+C to stop the server gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func openServerStore() (*store.Store, error) {
	s, err := store.Open(cfg.ServerDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open server database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort > 0 {
		cfg.Server.APIPort = servePort
	}
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	s, err := openServerStore()
	if err != nil {
		return err
	}
	defer s.Close()

	srv := api.NewServer(cfg, s, logger)

	fmt.Printf("mailsaver server started\n")
	fmt.Printf("  API server: http://%s\n", srv.Addr())
	fmt.Printf("  Database: %s\n", cfg.ServerDatabasePath())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "API port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

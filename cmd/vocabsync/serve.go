package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vocabsync/internal/server"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync server",
	Long: `Serve runs the reference sync server on the configured address and
storage backend. Tokens come from server.tokens in the config file; with
none configured every request belongs to the user "local".`,
	Example: `  vocabsync serve
  vocabsync serve --addr :9000`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Server.Store, logger)
	if err != nil {
		return fmt.Errorf("open server storage: %w", err)
	}
	if store == nil {
		return fmt.Errorf("server.store.backend is required")
	}
	defer store.Close()

	if len(cfg.Server.Tokens) == 0 {
		printWarning("No tokens configured: every request is accepted as user %q", server.DefaultUser)
	}

	srv := server.New(store, server.Options{
		Tokens:     cfg.Server.Tokens,
		MaxBackups: cfg.Server.MaxBackups,
	}, logger)

	printInfo("Listening on %s", addr)
	return srv.ListenAndServe(ctx, addr)
}

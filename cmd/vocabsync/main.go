package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vocabsync/internal/client"
	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/events"
)

var (
	cfgFile    string
	jsonOutput bool
	logLevel   string

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "vocabsync",
	Short: "Offline-first vocabulary flashcards with server sync",
	Long: `vocabsync keeps a vocabulary deck on this machine and synchronizes it
with a sync server when one is reachable. Every change is saved locally
first; sync uses the server revision to detect concurrent edits.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if apiClient != nil {
			if err := apiClient.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close client")
			}
		}
		if logger != nil {
			return logger.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: ./vocabsync.json or ~/.config/vocabsync/config.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Print machine-readable JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level override (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !jsonOutput {
			printError("%v", err)
		}
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	loaded, err := loader.Load()
	if err != nil {
		return err
	}
	cfg = loaded

	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	if file := loader.ConfigFile(); file != "" {
		logger.WithField("config", file).Debug("Loaded config file")
	}
	return nil
}

// openClient creates the client on first use.
func openClient(ctx context.Context) (*client.Client, error) {
	if apiClient != nil {
		return apiClient, nil
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	c, err := client.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize client: %w", err)
	}
	if c.UsedFallback() {
		printWarning("Primary storage unavailable; using fallback storage")
	}

	apiClient = c
	return c, nil
}

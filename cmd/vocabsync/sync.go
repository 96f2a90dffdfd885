package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/services/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push local changes to the sync server",
	Long: `Sync sends the local deck to the server along with the last known
server revision. If another device synced in between, the server refuses
and the conflict is reported; settle it with "vocabsync resolve".

With --watch, sync keeps running and pushes pending changes whenever the
server becomes reachable.`,
	Example: `  vocabsync sync
  vocabsync sync --watch`,
	RunE: runSync,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <fetch-server|force-local>",
	Short: "Settle a sync conflict",
	Long: `fetch-server backs up the local deck and replaces it with the server copy.
force-local overwrites the server copy with the local deck.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(models.StrategyFetchServer), string(models.StrategyForceLocal)},
	RunE:      runResolve,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the local deck with the server copy",
	Long:  `Pull is meant for setting up a new device. Existing local data is backed up first.`,
	RunE:  runPull,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE:  runStatus,
}

var syncWatch bool

func init() {
	rootCmd.AddCommand(syncCmd, resolveCmd, pullCmd, statusCmd)

	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false,
		"Keep running and sync whenever the server is reachable")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	if syncWatch {
		if !jsonOutput {
			printInfo("Watching for connectivity, press Ctrl+C to stop")
		}
		c.Watch(ctx, func(r *sync.Result) { _ = reportResult(r) })
		return nil
	}

	result, err := c.Sync(ctx)
	if err != nil {
		return err
	}
	return reportResult(result)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	strategy := models.ConflictStrategy(args[0])
	if !strategy.Valid() {
		return fmt.Errorf("unknown strategy %q (use fetch-server or force-local)", args[0])
	}

	return reportResult(c.Resolve(ctx, strategy))
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	found, err := c.Pull(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"pulled":    found,
			"serverRev": c.Status().ServerRev,
		})
		return nil
	}
	if !found {
		printInfo("Server has no data yet; run \"vocabsync sync\" to upload this deck")
		return nil
	}
	printSuccess("Pulled revision %d (%d words)", c.Status().ServerRev, len(c.Repo.Snapshot().Words))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	c.CheckConnectivity(ctx)
	status := c.Status()
	pending, err := c.HasPendingSync(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"status":        status,
			"authenticated": c.IsAuthenticated(),
			"pendingSync":   pending,
			"words":         len(c.Repo.Snapshot().Words),
		})
		return nil
	}

	if status.Online {
		printSuccess("Server reachable (%s)", cfg.API.BaseURL)
	} else {
		printWarning("Server unreachable (%s)", cfg.API.BaseURL)
	}
	if !c.IsAuthenticated() {
		printWarning("Not logged in")
	}
	fmt.Printf("Client ID:    %s\n", status.ClientID)
	fmt.Printf("Server rev:   %d\n", status.ServerRev)
	fmt.Printf("Words:        %d\n", len(c.Repo.Snapshot().Words))
	fmt.Printf("Local edits:  %t\n", status.Dirty)
	fmt.Printf("Pending sync: %t\n", pending)
	if status.LastSyncAt != nil {
		fmt.Printf("Last sync:    %s\n", status.LastSyncAt.Local().Format(time.DateTime))
	} else {
		fmt.Printf("Last sync:    never\n")
	}
	return nil
}

// reportResult prints a sync outcome and returns an error for failures.
func reportResult(r *sync.Result) error {
	if jsonOutput {
		printJSON(r)
	}

	switch r.Status {
	case sync.StatusSuccess:
		if !jsonOutput {
			printSuccess("Synced (server revision %d)", r.ServerRev)
		}
		return nil
	case sync.StatusBlockedOffline:
		if !jsonOutput {
			printWarning("Offline: changes stay local until the server is reachable")
		}
		return nil
	case sync.StatusRequiresAuth:
		if !jsonOutput {
			printWarning("Not logged in: sync will run after \"vocabsync login\"")
		}
		return nil
	case sync.StatusConflict:
		if !jsonOutput {
			printWarning("Conflict: the server has revision %d from another device", r.ServerData.ServerRev)
			fmt.Println("  vocabsync resolve fetch-server   keep the server copy (local deck is backed up)")
			fmt.Println("  vocabsync resolve force-local    overwrite the server copy")
		}
		return fmt.Errorf("sync conflict")
	default:
		return fmt.Errorf("sync failed [%s]: %s", r.Code, r.Message)
	}
}

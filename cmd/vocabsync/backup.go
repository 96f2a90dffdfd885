package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vocabsync/internal/vocab"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Inspect and restore local backups",
	Long: `Backups are taken automatically before the local deck is replaced by
the server copy, an import or a restore. The newest ones are kept.`,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local backups, newest first",
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "Replace the local deck with a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the deck to a JSON file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load a deck from a JSON file",
	Long: `Import replaces the local deck with the file, after backing it up.
With --merge, words are added or updated by ID and nothing is removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importMerge bool

func init() {
	rootCmd.AddCommand(backupCmd, exportCmd, importCmd)
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd)

	importCmd.Flags().BoolVar(&importMerge, "merge", false, "Merge into the local deck instead of replacing it")
}

func runBackupList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	entries, err := c.Backups.List(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(entries)
		return nil
	}
	if len(entries) == 0 {
		printInfo("No backups")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-40s %s\n", e.Key, e.CreatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	result, err := c.RestoreBackup(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(result)
		return nil
	}
	printSuccess("Restored %d words from %s", result.Total, args[0])
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd.Context())
	if err != nil {
		return err
	}

	data, name, err := c.Export()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		name = args[0]
	}

	if err := os.WriteFile(name, data, 0600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	path, _ := filepath.Abs(name)
	if jsonOutput {
		printJSON(map[string]interface{}{"file": path})
		return nil
	}
	printSuccess("Exported %d words to %s", len(c.Repo.Snapshot().Words), path)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	mode := vocab.ImportReplace
	if importMerge {
		mode = vocab.ImportMerge
	}

	result, err := c.ImportFile(ctx, data, mode)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(result)
		return nil
	}
	printSuccess("Imported: %d added, %d updated, %d total", result.Added, result.Updated, result.Total)
	return nil
}

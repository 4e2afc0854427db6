package commands

import (
	"fmt"
	"os"

	"github.com/flintwinters/custom-debian-iso-builder/internal/config"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupOutput    bool
	cleanupArtifacts bool
	cleanupAll       bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove the staging workspace and optionally build artifacts",
	Long: `Clean up files produced by previous runs:
  (default)     Remove the staging workspace directory
  --output      Also remove the built output ISO
  --artifacts   Also remove the build history and FSM databases
  --all         All of the above`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupOutput, "output", false, "Also remove the output ISO")
	cleanupCmd.Flags().BoolVar(&cleanupArtifacts, "artifacts", false, "Also remove databases")
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove workspace, output, and databases")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := removePath(cfg.WorkspaceDir, "workspace"); err != nil {
		return err
	}

	if cleanupOutput || cleanupAll {
		if err := removePath(cfg.OutputISO, "output ISO"); err != nil {
			return err
		}
	}

	if cleanupArtifacts || cleanupAll {
		if err := removePath(cfg.SQLitePath, "build database"); err != nil {
			return err
		}
		if err := removePath(cfg.FSMDBPath, "FSM database"); err != nil {
			return err
		}
	}

	return nil
}

func removePath(path, label string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "failed to remove %s %s", label, path)
	}
	fmt.Printf("Removed %s: %s\n", label, path)
	return nil
}

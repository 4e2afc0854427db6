package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flintwinters/custom-debian-iso-builder/internal/config"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/storage"
	"github.com/spf13/cobra"
)

var fetchList bool

var fetchCmd = &cobra.Command{
	Use:   "fetch-iso [key]",
	Short: "Download the source ISO from the mirror bucket",
	Long: `Downloads a source installer ISO from the configured S3 mirror into the
source-iso path, computing its SHA-256 along the way. With --list, shows the
ISOs available on the mirror instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchList, "list", false, "List ISOs available on the mirror")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return errors.Wrap(err, "mirror client failed")
	}

	if fetchList {
		keys, err := client.ListObjects(ctx, "")
		if err != nil {
			return errors.Wrap(err, "mirror listing failed")
		}
		if len(keys) == 0 {
			fmt.Println("No ISOs found on mirror")
			return nil
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	}

	// Default to fetching the configured source ISO by its own name.
	key := cfg.SourceISO
	if len(args) == 1 {
		key = args[0]
	}

	exists, err := client.Exists(ctx, key)
	if err != nil {
		return errors.Wrap(err, "mirror check failed")
	}
	if !exists {
		return fmt.Errorf("ISO %s not found on mirror %s", key, cfg.S3Bucket)
	}

	result, err := client.Download(ctx, key, cfg.SourceISO)
	if err != nil {
		return errors.Wrap(err, "ISO download failed")
	}

	slog.Info("fetch completed",
		"key", key,
		"local_path", result.LocalPath,
		"size_mb", result.Size/1024/1024,
		"sha256", result.SHA256,
	)
	return nil
}

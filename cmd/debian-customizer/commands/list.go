package commands

import (
	"fmt"

	"github.com/flintwinters/custom-debian-iso-builder/internal/config"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/db"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List past builds and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	builds, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(builds) == 0 {
		fmt.Println("No builds found")
		return nil
	}

	fmt.Printf("%-20s %-28s %-10s %-16s %s\n", "CREATED", "OUTPUT", "STATUS", "DEVICE", "SHA256")
	fmt.Println("------------------------------------------------------------------------------------------------")

	for _, b := range builds {
		devicePath := b.DevicePath
		if devicePath == "" {
			devicePath = "-"
		}
		sha := "-"
		if len(b.SHA256) >= 16 {
			sha = b.SHA256[:16]
		}

		fmt.Printf("%-20s %-28s %-10s %-16s %s\n",
			b.CreatedAt, b.OutputISO, b.Status, devicePath, sha)
	}

	return nil
}

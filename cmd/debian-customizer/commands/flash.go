package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flintwinters/custom-debian-iso-builder/internal/config"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/flash"
	"github.com/spf13/cobra"
)

var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Flash an already-built image to a removable drive",
	Long:  `Runs only the device gate against the output image: enumerates removable drives, asks for explicit confirmation, and performs the raw write. The image is not rebuilt.`,
	RunE:  runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if _, err := os.Stat(cfg.OutputISO); err != nil {
		return fmt.Errorf("output image %s not found; run create first", cfg.OutputISO)
	}

	gate, err := buildGate()
	if err != nil {
		return errors.Wrap(err, "device gate unavailable")
	}

	outcome, err := gate.Run(ctx, cfg.OutputISO)
	if err != nil {
		return err
	}

	switch outcome.State {
	case flash.StateDone:
		slog.Info("flash completed", "device", outcome.DevicePath, "bytes_written", outcome.BytesWritten)
	case flash.StateDeclined:
		slog.Info("flash declined by user")
	case flash.StateNoneFound:
		slog.Info("no removable devices found, nothing flashed")
	}
	return nil
}

package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flintwinters/custom-debian-iso-builder/internal/config"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/blockdev"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/db"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/flash"
	appfsm "github.com/flintwinters/custom-debian-iso-builder/pkg/fsm"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/iso"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var skipFlash bool

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Build a customized Debian ISO with unattended installation",
	Long:  `Stages the source ISO, injects the preseed and post-install script, patches the bootloader menus, repacks the image, and offers to flash it to a removable drive.`,
	RunE:  runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().BoolVar(&skipFlash, "skip-flash", false, "Build the image without offering to flash it")
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath); err != nil {
		return err
	}

	runner := iso.ExecRunner{}
	if err := iso.CheckPrerequisites(runner); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	gate, err := buildGate()
	if err != nil {
		slog.Warn("device gate unavailable, flash stage disabled", "error", err)
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(
		repo,
		iso.NewStager(runner, cfg.WorkspaceDir),
		iso.NewBuilder(runner),
		gate,
		cfg.KeepWorkspace,
		cfg.FSMMaxRetries,
	)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	runKey := uuid.NewString()
	req := &appfsm.BuildRequest{
		RunKey:            runKey,
		SourceISO:         cfg.SourceISO,
		PreseedPath:       cfg.PreseedPath,
		PostInstallConfig: cfg.PostInstallConfig,
		OutputPath:        cfg.OutputISO,
		SkipFlash:         skipFlash,
	}
	resp := &appfsm.BuildResponse{}

	version, err := start(ctx, runKey, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("pipeline started", "run_key", runKey, "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "pipeline failed")
	}

	slog.Info("create completed",
		"status", resp.Status,
		"output", resp.OutputPath,
		"flash", resp.FlashState,
		"device", resp.DevicePath,
	)
	return nil
}

// buildGate wires the real device gate: fresh lsblk enumeration, terminal
// prompts, raw block writes.
func buildGate() (*flash.Gate, error) {
	enum, err := blockdev.NewEnumerator()
	if err != nil {
		return nil, err
	}
	prompter := flash.NewTerminalPrompter(os.Stdin, os.Stdout)
	return flash.NewGate(enum, prompter, flash.NewRawFlasher()), nil
}

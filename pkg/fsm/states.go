package fsm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/flintwinters/custom-debian-iso-builder/pkg/db"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/flash"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/postinstall"
	"github.com/superfly/fsm"
)

// handleCheckDB records the run and enforces the retry ceiling
func (m *Machine) handleCheckDB(ctx context.Context, req *fsm.Request[BuildRequest, BuildResponse]) (*fsm.Response[BuildResponse], error) {
	slog.Info("fsm_state_check_db", "run_key", req.Msg.RunKey)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "run_key", req.Msg.RunKey, "max_retries", m.maxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &BuildResponse{}
	}

	build, err := m.repo.GetByRunKey(req.Msg.RunKey)
	if err != nil {
		slog.Error("database_check_failed", "run_key", req.Msg.RunKey, "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "database error"))
	}

	if build == nil {
		build = &db.Build{
			RunKey:    req.Msg.RunKey,
			SourceISO: req.Msg.SourceISO,
			OutputISO: req.Msg.OutputPath,
			Status:    db.StatusPending,
		}
		if err := m.repo.Create(build); err != nil {
			slog.Error("create_build_failed", "run_key", req.Msg.RunKey, "error", err)
			return nil, errors.Wrap(err, "failed to create build record")
		}
	}
	resp.BuildID = build.ID

	slog.Info("build_recorded", "run_key", req.Msg.RunKey, "build_id", build.ID)
	return fsm.NewResponse(resp), nil
}

// handleGenerateScript loads the post-install descriptor and renders the
// provisioning script. Descriptor errors are never retryable.
func (m *Machine) handleGenerateScript(ctx context.Context, req *fsm.Request[BuildRequest, BuildResponse]) (*fsm.Response[BuildResponse], error) {
	slog.Info("fsm_state_generate_script", "run_key", req.Msg.RunKey, "config", req.Msg.PostInstallConfig)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	cfg, err := postinstall.Load(req.Msg.PostInstallConfig)
	if err != nil {
		m.repo.UpdateStatus(resp.BuildID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(errors.Wrap(err, "config stage failed"))
	}

	resp.Script = postinstall.Generate(cfg)

	slog.Info("script_generated",
		"run_key", req.Msg.RunKey,
		"package_count", len(cfg.Packages),
		"script_bytes", len(resp.Script),
	)
	return fsm.NewResponse(resp), nil
}

// handleStage extracts the source image and overlays the customizations
func (m *Machine) handleStage(ctx context.Context, req *fsm.Request[BuildRequest, BuildResponse]) (*fsm.Response[BuildResponse], error) {
	slog.Info("fsm_state_stage", "run_key", req.Msg.RunKey, "source_iso", req.Msg.SourceISO)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusStaging, ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}

	stagedDir, err := m.stager.Stage(ctx, req.Msg.SourceISO, req.Msg.PreseedPath, resp.Script)
	if err != nil {
		slog.Error("stage_failed", "run_key", req.Msg.RunKey, "error", err)
		m.repo.UpdateStatus(resp.BuildID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(errors.Wrap(err, "staging stage failed"))
	}

	resp.StagedDir = stagedDir
	return fsm.NewResponse(resp), nil
}

// handleBuild repacks the staged tree into the output image
func (m *Machine) handleBuild(ctx context.Context, req *fsm.Request[BuildRequest, BuildResponse]) (*fsm.Response[BuildResponse], error) {
	slog.Info("fsm_state_build", "run_key", req.Msg.RunKey, "output", req.Msg.OutputPath)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.BuildID, db.StatusBuilding, ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}

	if err := m.builder.Build(ctx, resp.StagedDir, req.Msg.OutputPath); err != nil {
		slog.Error("build_failed", "run_key", req.Msg.RunKey, "error", err)
		m.repo.UpdateStatus(resp.BuildID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(errors.Wrap(err, "build stage failed"))
	}

	checksum, size, err := hashFile(req.Msg.OutputPath)
	if err != nil {
		m.repo.UpdateStatus(resp.BuildID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(errors.Wrap(err, "failed to checksum output image"))
	}

	resp.OutputPath = req.Msg.OutputPath
	resp.OutputSize = size
	resp.SHA256 = checksum

	build, _ := m.repo.GetByRunKey(req.Msg.RunKey)
	if build != nil {
		build.SHA256 = checksum
		build.Status = db.StatusBuilt
		if err := m.repo.Update(build); err != nil {
			return nil, errors.Wrap(err, "failed to update build")
		}
	}

	slog.Info("image_built",
		"run_key", req.Msg.RunKey,
		"output", req.Msg.OutputPath,
		"size_mb", size/1024/1024,
		"sha256", checksum[:16]+"...",
	)
	return fsm.NewResponse(resp), nil
}

// handleFlash runs the device gate. No removable device and an operator
// decline are successes; the built image is the primary deliverable.
func (m *Machine) handleFlash(ctx context.Context, req *fsm.Request[BuildRequest, BuildResponse]) (*fsm.Response[BuildResponse], error) {
	slog.Info("fsm_state_flash", "run_key", req.Msg.RunKey)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if req.Msg.SkipFlash || m.gate == nil {
		slog.Info("flash_skipped", "run_key", req.Msg.RunKey)
		resp.FlashState = FlashSkipped
		return fsm.NewResponse(resp), nil
	}

	outcome, err := m.gate.Run(ctx, resp.OutputPath)
	if err != nil {
		slog.Error("flash_failed", "run_key", req.Msg.RunKey, "device", outcome.DevicePath, "error", err)
		m.repo.UpdateStatus(resp.BuildID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(errors.Wrap(err, "flash stage failed"))
	}

	switch outcome.State {
	case flash.StateDone:
		resp.FlashState = FlashDone
		resp.DevicePath = outcome.DevicePath
		resp.BytesWritten = outcome.BytesWritten
		build, _ := m.repo.GetByRunKey(req.Msg.RunKey)
		if build != nil {
			build.Status = db.StatusFlashed
			build.DevicePath = outcome.DevicePath
			build.BytesWritten = outcome.BytesWritten
			if err := m.repo.Update(build); err != nil {
				return nil, errors.Wrap(err, "failed to update build")
			}
		}
	case flash.StateDeclined:
		resp.FlashState = FlashDeclined
		if err := m.repo.UpdateStatus(resp.BuildID, db.StatusDeclined, ""); err != nil {
			return nil, errors.Wrap(err, "failed to update status")
		}
	case flash.StateNoneFound:
		resp.FlashState = FlashNoneFound
	}

	return fsm.NewResponse(resp), nil
}

// handleComplete cleans the workspace and settles the final status
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[BuildRequest, BuildResponse]) (*fsm.Response[BuildResponse], error) {
	slog.Info("fsm_state_complete", "run_key", req.Msg.RunKey)

	resp := req.W.Msg
	if resp == nil {
		resp = &BuildResponse{}
	}

	if !m.keepWorkspace && resp.StagedDir != "" {
		if err := os.RemoveAll(resp.StagedDir); err != nil {
			slog.Warn("workspace_cleanup_failed", "path", resp.StagedDir, "error", err)
		} else {
			slog.Info("workspace_removed", "path", resp.StagedDir)
		}
	}

	build, err := m.repo.GetByRunKey(req.Msg.RunKey)
	if err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to load build"))
	}
	if build != nil {
		resp.Status = build.Status
	}

	slog.Info("fsm_complete",
		"run_key", req.Msg.RunKey,
		"status", resp.Status,
		"flash", resp.FlashState,
	)
	return fsm.NewResponse(resp), nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

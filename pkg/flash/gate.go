// Package flash implements the device-safety gate that guards the
// destructive write of a built image onto removable media.
package flash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/blockdev"
	apperrors "github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
)

// State names for the gate's one-shot state machine.
type State string

const (
	StateIdle                 State = "idle"
	StateEnumerating          State = "enumerating"
	StateNoneFound            State = "none_found"
	StateSingleCandidate      State = "single_candidate"
	StateMultipleCandidates   State = "multiple_candidates"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateConfirmed            State = "confirmed"
	StateDeclined             State = "declined"
	StateWriting              State = "writing"
	StateWriteFailed          State = "write_failed"
	StateDone                 State = "done"
)

// Re-validation failure modes. Both mean the device state observed at
// confirmation time can no longer be trusted.
var (
	// ErrDeviceChanged indicates the confirmed device is gone or its
	// identity no longer matches at write time.
	ErrDeviceChanged = errors.New("device no longer matches confirmed selection")
	// ErrNotRemovable indicates the device at the confirmed path is no
	// longer flagged removable. Never written to under any code path.
	ErrNotRemovable = errors.New("device is not removable media")
)

// Outcome reports how a gate run terminated.
type Outcome struct {
	State        State
	DevicePath   string
	BytesWritten int64
}

// Gate enumerates removable devices, collects explicit consent, and
// performs the raw write. One execution per pipeline run.
type Gate struct {
	enum     blockdev.Enumerator
	prompter Prompter
	flasher  Flasher
}

// NewGate wires the gate's capabilities. All three are interfaces so the
// state machine is exercised in tests with scripted fakes.
func NewGate(enum blockdev.Enumerator, prompter Prompter, flasher Flasher) *Gate {
	return &Gate{enum: enum, prompter: prompter, flasher: flasher}
}

// Run drives the gate to a terminal state for imagePath. NoneFound and
// Declined are successful outcomes (the image build already succeeded);
// only enumeration and write failures return an error.
func (g *Gate) Run(ctx context.Context, imagePath string) (*Outcome, error) {
	slog.Info("gate_enumerating", "image", imagePath)

	devices, err := g.enum.List(ctx)
	if err != nil {
		return &Outcome{State: StateWriteFailed}, apperrors.Wrap(err, "device enumeration failed")
	}

	// Removability is re-checked here even though enumerators may
	// pre-filter; the gate is the safety authority.
	candidates := blockdev.FilterRemovable(devices)
	if len(candidates) == 0 {
		slog.Info("gate_no_removable_devices")
		return &Outcome{State: StateNoneFound}, nil
	}

	chosen, declined, err := g.selectDevice(candidates)
	if err != nil {
		return &Outcome{State: StateWriteFailed}, err
	}
	if declined {
		slog.Info("gate_declined")
		return &Outcome{State: StateDeclined}, nil
	}

	ok, err := g.confirm(imagePath, chosen)
	if err != nil || !ok {
		// Any non-affirmative response, including interrupted input,
		// routes to declined. Never defaults to proceeding.
		slog.Info("gate_declined", "device", chosen.Path)
		return &Outcome{State: StateDeclined, DevicePath: chosen.Path}, nil
	}

	return g.write(ctx, imagePath, chosen)
}

// selectDevice returns the chosen candidate, or declined=true when the
// operator gave no explicit selection.
func (g *Gate) selectDevice(candidates []blockdev.Device) (blockdev.Device, bool, error) {
	if len(candidates) == 1 {
		slog.Info("gate_single_candidate", "device", candidates[0].Path,
			"size", humanize.IBytes(uint64(candidates[0].SizeBytes)))
		return candidates[0], false, nil
	}

	slog.Info("gate_multiple_candidates", "count", len(candidates))
	idx, err := g.prompter.SelectOne(candidates)
	if err != nil || idx < 0 || idx >= len(candidates) {
		// There is no default choice among multiple candidates.
		return blockdev.Device{}, true, nil
	}
	return candidates[idx], false, nil
}

func (g *Gate) confirm(imagePath string, dev blockdev.Device) (bool, error) {
	prompt := fmt.Sprintf(
		"WARNING: this will destroy all data on %s (%s, %s).\nWrite %s to %s?",
		dev.Path, humanize.IBytes(uint64(dev.SizeBytes)), transportLabel(dev),
		imagePath, dev.Path)
	return g.prompter.Confirm(prompt)
}

// write re-validates the confirmed device against a fresh enumeration and
// performs the raw copy. A device list captured before confirmation is
// never trusted at write time.
func (g *Gate) write(ctx context.Context, imagePath string, confirmed blockdev.Device) (*Outcome, error) {
	slog.Info("gate_revalidating", "device", confirmed.Path)

	devices, err := g.enum.List(ctx)
	if err != nil {
		return &Outcome{State: StateWriteFailed, DevicePath: confirmed.Path},
			apperrors.Wrapf(err, "re-enumeration before writing %s failed", confirmed.Path)
	}

	current := blockdev.FindByPath(devices, confirmed.Path)
	if current == nil {
		slog.Error("gate_device_vanished", "device", confirmed.Path)
		return &Outcome{State: StateWriteFailed, DevicePath: confirmed.Path},
			fmt.Errorf("%w: %s", ErrDeviceChanged, confirmed.Path)
	}
	if !current.Removable {
		slog.Error("gate_device_not_removable", "device", confirmed.Path)
		return &Outcome{State: StateWriteFailed, DevicePath: confirmed.Path},
			fmt.Errorf("%w: %s", ErrNotRemovable, confirmed.Path)
	}

	for _, mount := range current.MountedPartitions {
		slog.Info("gate_unmounting", "device", current.Path, "mount", mount)
		if err := g.flasher.Unmount(ctx, mount); err != nil {
			return &Outcome{State: StateWriteFailed, DevicePath: current.Path},
				apperrors.Wrapf(err, "failed to unmount %s on %s", mount, current.Path)
		}
	}

	slog.Info("gate_writing", "image", imagePath, "device", current.Path)
	n, err := g.flasher.WriteImage(ctx, imagePath, current.Path)
	if err != nil {
		// A partial flash is not a bootable device; any error after any
		// bytes have been transferred is a failure, never silent success.
		slog.Error("gate_write_failed", "device", current.Path, "bytes_written", n, "error", err)
		return &Outcome{State: StateWriteFailed, DevicePath: current.Path, BytesWritten: n},
			apperrors.Wrapf(err, "write to %s failed after %d bytes", current.Path, n)
	}

	if err := g.flasher.Eject(ctx, current.Path); err != nil {
		// Best effort; the image landed.
		slog.Warn("gate_eject_failed", "device", current.Path, "error", err)
	}

	slog.Info("gate_done", "device", current.Path, "bytes_written", n)
	return &Outcome{State: StateDone, DevicePath: current.Path, BytesWritten: n}, nil
}

func transportLabel(dev blockdev.Device) string {
	if dev.Transport == "" {
		return "unknown bus"
	}
	return dev.Transport
}

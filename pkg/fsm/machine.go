// Package fsm implements the ISO customization pipeline as a finite state
// machine: check_db → generate_script → stage → build → flash → complete,
// using the superfly/fsm library. Every stage failure aborts the remaining
// pipeline; declining to flash is a valid terminal outcome, not a failure.
package fsm

import (
	"context"

	"github.com/flintwinters/custom-debian-iso-builder/pkg/db"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/flash"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/iso"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo          *db.Repository
	stager        *iso.Stager
	builder       *iso.Builder
	gate          *flash.Gate
	keepWorkspace bool
	maxRetries    int
}

// NewMachine creates a new FSM machine with dependencies. gate may be nil
// when the flash stage is disabled.
func NewMachine(
	repo *db.Repository,
	stager *iso.Stager,
	builder *iso.Builder,
	gate *flash.Gate,
	keepWorkspace bool,
	maxRetries int,
) *Machine {
	return &Machine{
		repo:          repo,
		stager:        stager,
		builder:       builder,
		gate:          gate,
		keepWorkspace: keepWorkspace,
		maxRetries:    maxRetries,
	}
}

// Register registers the ISO build FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[BuildRequest, BuildResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[BuildRequest, BuildResponse](manager, "iso-build").
		Start(StateCheckDB, m.handleCheckDB).
		To(StateGenerateScript, m.handleGenerateScript).
		To(StateStage, m.handleStage).
		To(StateBuild, m.handleBuild).
		To(StateFlash, m.handleFlash).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

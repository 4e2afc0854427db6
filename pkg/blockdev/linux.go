//go:build linux

package blockdev

import (
	"context"
	"log/slog"
	"os/exec"

	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
)

// LsblkEnumerator lists block devices by shelling out to lsblk.
type LsblkEnumerator struct{}

// NewEnumerator creates the Linux block device enumerator.
func NewEnumerator() (Enumerator, error) {
	if _, err := exec.LookPath("lsblk"); err != nil {
		slog.Error("lsblk_not_found")
		return nil, errors.Wrap(err, "lsblk is required for device enumeration")
	}
	return &LsblkEnumerator{}, nil
}

// List enumerates whole-disk devices fresh; results are never cached.
func (e *LsblkEnumerator) List(ctx context.Context) ([]Device, error) {
	cmd := exec.CommandContext(ctx, "lsblk", "-J", "-b",
		"-o", "NAME,SIZE,TYPE,TRAN,RM,MOUNTPOINT")
	out, err := cmd.Output()
	if err != nil {
		slog.Error("lsblk_failed", "error", err)
		return nil, errors.Wrap(err, "lsblk enumeration failed")
	}

	devices, err := parseLsblk(out)
	if err != nil {
		slog.Error("lsblk_parse_failed", "error", err)
		return nil, err
	}

	slog.Info("devices_enumerated", "disk_count", len(devices))
	return devices, nil
}

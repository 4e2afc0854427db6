package iso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Build failure modes. Callers classify with errors.Is.
var (
	// ErrRepackToolMissing indicates xorriso is not on the execution path.
	ErrRepackToolMissing = errors.New("repack tool missing")
	// ErrRepackFailed indicates xorriso exited nonzero; the message
	// carries the captured diagnostic output.
	ErrRepackFailed = errors.New("repack failed")
)

// isohybridMBR carries the MBR boot code that makes the hybrid image
// bootable when written raw to a disk.
const isohybridMBR = "/usr/lib/ISOLINUX/isohdpfx.bin"

// Builder repacks a staged tree into a bootable hybrid ISO.
type Builder struct {
	runner Runner
}

// NewBuilder creates a builder that repacks with the given runner.
func NewBuilder(runner Runner) *Builder {
	return &Builder{runner: runner}
}

// CheckPrerequisites verifies the repack utility is installed before any
// work begins.
func CheckPrerequisites(runner Runner) error {
	if _, err := runner.LookPath(RepackTool); err != nil {
		slog.Error("repack_tool_not_found", "tool", RepackTool)
		return fmt.Errorf("%w: %s is not installed or not on PATH", ErrRepackToolMissing, RepackTool)
	}
	return nil
}

// Build repacks stagedDir into outputPath, keeping the image bootable via
// both the BIOS (El Torito ISOLINUX) and UEFI (GRUB EFI) paths. The image
// is written to a temp path and renamed on success, so a failed build
// never leaves a partial output and an existing output is overwritten
// atomically.
func (b *Builder) Build(ctx context.Context, stagedDir, outputPath string) error {
	if _, err := b.runner.LookPath(RepackTool); err != nil {
		slog.Error("repack_tool_not_found", "tool", RepackTool)
		return fmt.Errorf("%w: %s is not installed or not on PATH", ErrRepackToolMissing, RepackTool)
	}

	partial := outputPath + ".partial"
	slog.Info("repack_start", "staged_dir", stagedDir, "output", outputPath)

	args := []string{
		"-as", "mkisofs",
		"-isohybrid-mbr", isohybridMBR,
		"-c", "isolinux/boot.cat",
		"-b", "isolinux/isolinux.bin",
		"-no-emul-boot", "-boot-load-size", "4", "-boot-info-table",
		"-eltorito-alt-boot",
		"-e", "boot/grub/efi.img",
		"-no-emul-boot",
		"-isohybrid-gpt-basdat",
		"-o", partial,
		stagedDir,
	}

	out, err := b.runner.Run(ctx, RepackTool, args...)
	if err != nil {
		os.Remove(partial)
		slog.Error("repack_failed", "output", outputPath, "error", err)
		return fmt.Errorf("%w: %v\n%s", ErrRepackFailed, err, strings.TrimSpace(string(out)))
	}

	if err := os.Rename(partial, outputPath); err != nil {
		os.Remove(partial)
		return fmt.Errorf("%w: cannot move image into place: %v", ErrRepackFailed, err)
	}

	slog.Info("repack_complete", "output", outputPath)
	return nil
}

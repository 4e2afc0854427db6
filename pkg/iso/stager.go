package iso

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Staging failure modes. Callers classify with errors.Is.
var (
	// ErrSourceImageMissing indicates the source ISO does not exist.
	ErrSourceImageMissing = errors.New("source image missing")
	// ErrPreseedMissing indicates the preseed file does not exist.
	ErrPreseedMissing = errors.New("preseed file missing")
	// ErrBootloaderPatchFailed indicates the expected marker text was not
	// found in a bootloader config. The source image's layout no longer
	// matches assumptions, so the patch must fail rather than silently
	// produce an interactively-booting image.
	ErrBootloaderPatchFailed = errors.New("bootloader patch failed")
)

const (
	// RepackTool is the external utility used to extract and rebuild ISOs.
	RepackTool = "xorriso"

	// PreseedFilename is where the installer expects the preseed inside the tree.
	PreseedFilename = "preseed.cfg"

	// ScriptFilename is where the post-install hook is placed inside the tree.
	ScriptFilename = "post_install_setup.sh"

	isolinuxCfgRel = "isolinux/isolinux.cfg"
	grubCfgRel     = "boot/grub/grub.cfg"

	// Marker lines that must exist in the stock bootloader configs before
	// the autoinstall entries are prepended.
	isolinuxMarker = "include menu.cfg"
	grubMarker     = "menuentry"
)

// isolinuxAutoinstallEntry is prepended to isolinux.cfg so BIOS boots
// default straight into the unattended install.
const isolinuxAutoinstallEntry = `DEFAULT autoinstall
LABEL autoinstall
    MENU LABEL Automated Install
    KERNEL /install.amd/vmlinuz
    APPEND initrd=/install.amd/initrd.gz --- quiet auto=true priority=critical preseed/file=/cdrom/preseed.cfg`

// grubAutoinstallEntry is prepended to grub.cfg for the UEFI boot path.
const grubAutoinstallEntry = `menuentry 'Automated Unattended Install' --class auto {
    linux    /install.amd/vmlinuz --- quiet auto=true priority=critical preseed/file=/cdrom/preseed.cfg
    initrd   /install.amd/initrd.gz
}`

// Stager extracts the source image into a working directory and overlays
// the preseed file, the generated script, and the bootloader patches.
type Stager struct {
	runner  Runner
	workDir string
}

// NewStager creates a stager that stages into workDir. The directory is
// recreated on every Stage call; it is owned exclusively by the run.
func NewStager(runner Runner, workDir string) *Stager {
	return &Stager{runner: runner, workDir: workDir}
}

// Stage produces the staged tree and returns its path. The source image is
// read-only and never mutated.
func (s *Stager) Stage(ctx context.Context, sourceISO, preseedPath, script string) (string, error) {
	slog.Info("stage_start", "source_iso", sourceISO, "workspace", s.workDir)

	if _, err := os.Stat(sourceISO); err != nil {
		slog.Error("source_iso_missing", "path", sourceISO)
		return "", fmt.Errorf("%w: %s", ErrSourceImageMissing, sourceISO)
	}
	if _, err := os.Stat(preseedPath); err != nil {
		slog.Error("preseed_missing", "path", preseedPath)
		return "", fmt.Errorf("%w: %s", ErrPreseedMissing, preseedPath)
	}

	if err := os.RemoveAll(s.workDir); err != nil {
		return "", fmt.Errorf("failed to clean workspace %s: %w", s.workDir, err)
	}
	if err := os.MkdirAll(s.workDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", s.workDir, err)
	}

	slog.Info("iso_extract_start", "source_iso", sourceISO)
	out, err := s.runner.Run(ctx, RepackTool,
		"-osirrox", "on", "-indev", sourceISO, "-extract", "/", s.workDir)
	if err != nil {
		slog.Error("iso_extract_failed", "source_iso", sourceISO, "error", err)
		return "", fmt.Errorf("failed to extract %s: %w\n%s", sourceISO, err, strings.TrimSpace(string(out)))
	}
	slog.Info("iso_extract_complete", "workspace", s.workDir)

	if err := s.copyPreseed(preseedPath); err != nil {
		return "", err
	}
	if err := s.writeScript(script); err != nil {
		return "", err
	}
	if err := s.patchBootloaders(); err != nil {
		return "", err
	}

	slog.Info("stage_complete", "workspace", s.workDir)
	return s.workDir, nil
}

func (s *Stager) copyPreseed(preseedPath string) error {
	dest := filepath.Join(s.workDir, PreseedFilename)

	src, err := os.Open(preseedPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPreseedMissing, preseedPath)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy preseed to %s: %w", dest, err)
	}

	slog.Info("preseed_staged", "dest", dest)
	return nil
}

func (s *Stager) writeScript(script string) error {
	dest := filepath.Join(s.workDir, ScriptFilename)
	if err := os.WriteFile(dest, []byte(script), 0755); err != nil {
		return fmt.Errorf("failed to write post-install script %s: %w", dest, err)
	}
	slog.Info("postinstall_script_staged", "dest", dest, "size_bytes", len(script))
	return nil
}

// patchBootloaders rewrites the ISOLINUX and GRUB menu configs so the
// unattended entry is default and the menu timeout is minimal. Targeted
// text substitution only; the expected marker must be present.
func (s *Stager) patchBootloaders() error {
	isolinuxPath := filepath.Join(s.workDir, isolinuxCfgRel)
	if err := s.patchFile(isolinuxPath, isolinuxMarker, func(original string) string {
		return "TIMEOUT 10\n" + isolinuxAutoinstallEntry + "\n" + original
	}); err != nil {
		return err
	}
	slog.Info("isolinux_patched", "path", isolinuxPath)

	grubPath := filepath.Join(s.workDir, grubCfgRel)
	if err := s.patchFile(grubPath, grubMarker, func(original string) string {
		return "set timeout=1\nset default=\"0\"\n\n" + grubAutoinstallEntry + "\n\n" + original
	}); err != nil {
		return err
	}
	slog.Info("grub_patched", "path", grubPath)

	return nil
}

func (s *Stager) patchFile(path, marker string, rewrite func(string) string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("bootloader_config_missing", "path", path, "error", err)
		return fmt.Errorf("%w: cannot read %s: %v", ErrBootloaderPatchFailed, path, err)
	}

	content := string(data)
	if !strings.Contains(content, marker) {
		slog.Error("bootloader_marker_not_found", "path", path, "marker", marker)
		return fmt.Errorf("%w: marker %q not found in %s", ErrBootloaderPatchFailed, marker, path)
	}

	// Files extracted from ISO9660 come out read-only.
	if err := makeWritable(path); err != nil {
		return fmt.Errorf("%w: cannot unlock %s: %v", ErrBootloaderPatchFailed, path, err)
	}

	if err := os.WriteFile(path, []byte(rewrite(content)), 0644); err != nil {
		return fmt.Errorf("%w: cannot write %s: %v", ErrBootloaderPatchFailed, path, err)
	}
	return nil
}

// makeWritable restores owner write permission on a file and its parent
// directory, both of which are stripped by ISO9660 extraction.
func makeWritable(path string) error {
	for _, p := range []string{filepath.Dir(path), path} {
		fi, err := os.Stat(p)
		if err != nil {
			return err
		}
		if err := os.Chmod(p, fi.Mode().Perm()|0200); err != nil {
			return err
		}
	}
	return nil
}

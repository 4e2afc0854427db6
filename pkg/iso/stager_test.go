package iso

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner records invocations and delegates to a hook so staging and
// repacking are exercised without xorriso installed.
type fakeRunner struct {
	lookPathErr error
	runHook     func(name string, args []string) ([]byte, error)
	calls       [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.runHook != nil {
		return f.runHook(name, args)
	}
	return nil, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookPathErr != nil {
		return "", f.lookPathErr
	}
	return "/usr/bin/" + name, nil
}

const stockIsolinuxCfg = `# D-I config version 2.0
include menu.cfg
default vesamenu.c32
prompt 0
timeout 0
`

const stockGrubCfg = `set theme=/boot/grub/theme/1
menuentry 'Install' {
    linux    /install.amd/vmlinuz
    initrd   /install.amd/initrd.gz
}
`

// extractingRunner simulates xorriso extraction by populating the
// workspace with a stock bootloader layout.
func extractingRunner(isolinuxContent, grubContent string) *fakeRunner {
	return &fakeRunner{
		runHook: func(name string, args []string) ([]byte, error) {
			// last argument of -extract is the destination directory
			dest := args[len(args)-1]
			if isolinuxContent != "" {
				path := filepath.Join(dest, "isolinux", "isolinux.cfg")
				os.MkdirAll(filepath.Dir(path), 0755)
				if err := os.WriteFile(path, []byte(isolinuxContent), 0444); err != nil {
					return nil, err
				}
			}
			if grubContent != "" {
				path := filepath.Join(dest, "boot", "grub", "grub.cfg")
				os.MkdirAll(filepath.Dir(path), 0755)
				if err := os.WriteFile(path, []byte(grubContent), 0444); err != nil {
					return nil, err
				}
			}
			return nil, nil
		},
	}
}

func stageInputs(t *testing.T) (sourceISO, preseed string) {
	t.Helper()
	dir := t.TempDir()
	sourceISO = filepath.Join(dir, "debian.iso")
	preseed = filepath.Join(dir, "preseed.cfg")
	if err := os.WriteFile(sourceISO, []byte("iso-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(preseed, []byte("d-i preseed/late_command string true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return sourceISO, preseed
}

func TestStage_SourceImageMissing(t *testing.T) {
	_, preseed := stageInputs(t)
	s := NewStager(&fakeRunner{}, filepath.Join(t.TempDir(), "ws"))

	_, err := s.Stage(context.Background(), "/nonexistent/debian.iso", preseed, "#!/bin/bash\n")
	if !errors.Is(err, ErrSourceImageMissing) {
		t.Errorf("expected ErrSourceImageMissing, got %v", err)
	}
}

func TestStage_PreseedMissing(t *testing.T) {
	sourceISO, _ := stageInputs(t)
	s := NewStager(&fakeRunner{}, filepath.Join(t.TempDir(), "ws"))

	_, err := s.Stage(context.Background(), sourceISO, "/nonexistent/preseed.cfg", "#!/bin/bash\n")
	if !errors.Is(err, ErrPreseedMissing) {
		t.Errorf("expected ErrPreseedMissing, got %v", err)
	}
}

func TestStage_ExtractionFailure(t *testing.T) {
	sourceISO, preseed := stageInputs(t)
	runner := &fakeRunner{
		runHook: func(name string, args []string) ([]byte, error) {
			return []byte("xorriso : FAILURE"), fmt.Errorf("exit status 1")
		},
	}
	s := NewStager(runner, filepath.Join(t.TempDir(), "ws"))

	_, err := s.Stage(context.Background(), sourceISO, preseed, "#!/bin/bash\n")
	if err == nil {
		t.Fatal("expected extraction error")
	}
	if !strings.Contains(err.Error(), "xorriso : FAILURE") {
		t.Errorf("error should carry tool diagnostics, got %v", err)
	}
}

func TestStage_HappyPath(t *testing.T) {
	sourceISO, preseed := stageInputs(t)
	workDir := filepath.Join(t.TempDir(), "ws")
	runner := extractingRunner(stockIsolinuxCfg, stockGrubCfg)
	s := NewStager(runner, workDir)

	script := "#!/bin/bash\nset -e\necho done\n"
	staged, err := s.Stage(context.Background(), sourceISO, preseed, script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if staged != workDir {
		t.Errorf("staged dir mismatch: got %s, want %s", staged, workDir)
	}

	// preseed copied into place
	preseedData, err := os.ReadFile(filepath.Join(workDir, PreseedFilename))
	if err != nil || !strings.Contains(string(preseedData), "late_command") {
		t.Errorf("preseed not staged: %v", err)
	}

	// script written executable
	fi, err := os.Stat(filepath.Join(workDir, ScriptFilename))
	if err != nil {
		t.Fatalf("script not staged: %v", err)
	}
	if fi.Mode().Perm()&0100 == 0 {
		t.Errorf("script not executable: mode %v", fi.Mode())
	}

	// isolinux patched: short timeout + autoinstall default, original preserved
	isolinux, _ := os.ReadFile(filepath.Join(workDir, "isolinux", "isolinux.cfg"))
	if !strings.HasPrefix(string(isolinux), "TIMEOUT 10\nDEFAULT autoinstall\n") {
		t.Errorf("isolinux patch missing:\n%s", isolinux)
	}
	if !strings.Contains(string(isolinux), "include menu.cfg") {
		t.Errorf("original isolinux content lost:\n%s", isolinux)
	}

	// grub patched: default entry zero + short timeout, original preserved
	grub, _ := os.ReadFile(filepath.Join(workDir, "boot", "grub", "grub.cfg"))
	if !strings.HasPrefix(string(grub), "set timeout=1\nset default=\"0\"\n") {
		t.Errorf("grub patch missing:\n%s", grub)
	}
	if !strings.Contains(string(grub), "Automated Unattended Install") {
		t.Errorf("grub autoinstall entry missing:\n%s", grub)
	}
	if !strings.Contains(string(grub), "menuentry 'Install'") {
		t.Errorf("original grub content lost:\n%s", grub)
	}
}

func TestStage_IsolinuxMarkerAbsent(t *testing.T) {
	sourceISO, preseed := stageInputs(t)
	runner := extractingRunner("some unexpected layout\n", stockGrubCfg)
	s := NewStager(runner, filepath.Join(t.TempDir(), "ws"))

	_, err := s.Stage(context.Background(), sourceISO, preseed, "#!/bin/bash\n")
	if !errors.Is(err, ErrBootloaderPatchFailed) {
		t.Errorf("expected ErrBootloaderPatchFailed, got %v", err)
	}
}

func TestStage_GrubConfigMissing(t *testing.T) {
	sourceISO, preseed := stageInputs(t)
	runner := extractingRunner(stockIsolinuxCfg, "")
	s := NewStager(runner, filepath.Join(t.TempDir(), "ws"))

	_, err := s.Stage(context.Background(), sourceISO, preseed, "#!/bin/bash\n")
	if !errors.Is(err, ErrBootloaderPatchFailed) {
		t.Errorf("expected ErrBootloaderPatchFailed, got %v", err)
	}
}

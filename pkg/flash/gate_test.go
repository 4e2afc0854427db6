package flash

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/flintwinters/custom-debian-iso-builder/pkg/blockdev"
)

// fakeEnum replays a sequence of device lists, one per List call, so the
// view at confirmation time can differ from the view at write time.
type fakeEnum struct {
	lists [][]blockdev.Device
	err   error
	calls int
}

func (f *fakeEnum) List(ctx context.Context) ([]blockdev.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.lists) {
		idx = len(f.lists) - 1
	}
	f.calls++
	return f.lists[idx], nil
}

// fakePrompter gives scripted answers and records the prompts it saw.
type fakePrompter struct {
	confirmAnswer  bool
	confirmErr     error
	selection      int
	selectErr      error
	confirmPrompts []string
	selectCalls    int
}

func (f *fakePrompter) Confirm(prompt string) (bool, error) {
	f.confirmPrompts = append(f.confirmPrompts, prompt)
	return f.confirmAnswer, f.confirmErr
}

func (f *fakePrompter) SelectOne(candidates []blockdev.Device) (int, error) {
	f.selectCalls++
	return f.selection, f.selectErr
}

// fakeFlasher records every destructive operation.
type fakeFlasher struct {
	writtenTo []string
	bytes     int64
	writeErr  error
	unmounted []string
	ejected   []string
}

func (f *fakeFlasher) Unmount(ctx context.Context, mountPoint string) error {
	f.unmounted = append(f.unmounted, mountPoint)
	return nil
}

func (f *fakeFlasher) WriteImage(ctx context.Context, imagePath, devicePath string) (int64, error) {
	f.writtenTo = append(f.writtenTo, devicePath)
	if f.writeErr != nil {
		return 100, f.writeErr
	}
	return f.bytes, nil
}

func (f *fakeFlasher) Eject(ctx context.Context, devicePath string) error {
	f.ejected = append(f.ejected, devicePath)
	return nil
}

var (
	usbA = blockdev.Device{Path: "/dev/sdb", SizeBytes: 16e9, Removable: true, Transport: "usb"}
	usbB = blockdev.Device{Path: "/dev/sdc", SizeBytes: 32e9, Removable: true, Transport: "usb",
		MountedPartitions: []string{"/media/usb"}}
	internal = blockdev.Device{Path: "/dev/nvme0n1", SizeBytes: 512e9, Removable: false, Transport: "nvme"}
)

func TestGate_NoDevices(t *testing.T) {
	flasher := &fakeFlasher{}
	gate := NewGate(
		&fakeEnum{lists: [][]blockdev.Device{nil}},
		&fakePrompter{confirmAnswer: true},
		flasher,
	)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if err != nil {
		t.Fatalf("no devices must be a success, got %v", err)
	}
	if outcome.State != StateNoneFound {
		t.Errorf("expected none_found, got %s", outcome.State)
	}
	if len(flasher.writtenTo) != 0 {
		t.Error("no write may be attempted with no devices")
	}
}

func TestGate_OnlyNonRemovableDevices(t *testing.T) {
	// Even a prompter that always says yes must never reach a
	// non-removable device.
	flasher := &fakeFlasher{}
	gate := NewGate(
		&fakeEnum{lists: [][]blockdev.Device{{internal}}},
		&fakePrompter{confirmAnswer: true},
		flasher,
	)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != StateNoneFound {
		t.Errorf("expected none_found, got %s", outcome.State)
	}
	if len(flasher.writtenTo) != 0 {
		t.Error("non-removable device must never be written")
	}
}

func TestGate_SingleCandidateDeclined(t *testing.T) {
	flasher := &fakeFlasher{}
	prompter := &fakePrompter{confirmAnswer: false}
	gate := NewGate(&fakeEnum{lists: [][]blockdev.Device{{usbA}}}, prompter, flasher)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if err != nil {
		t.Fatalf("decline must be a success, got %v", err)
	}
	if outcome.State != StateDeclined {
		t.Errorf("expected declined, got %s", outcome.State)
	}
	if len(flasher.writtenTo) != 0 {
		t.Error("no write may be attempted after a decline")
	}
	// single candidate still requires confirmation
	if len(prompter.confirmPrompts) != 1 {
		t.Fatalf("expected exactly one confirmation, got %d", len(prompter.confirmPrompts))
	}
}

func TestGate_SingleCandidateConfirmed(t *testing.T) {
	flasher := &fakeFlasher{bytes: 777}
	prompter := &fakePrompter{confirmAnswer: true}
	gate := NewGate(&fakeEnum{lists: [][]blockdev.Device{{usbA}}}, prompter, flasher)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != StateDone {
		t.Fatalf("expected done, got %s", outcome.State)
	}
	if outcome.DevicePath != "/dev/sdb" || outcome.BytesWritten != 777 {
		t.Errorf("outcome mismatch: %+v", outcome)
	}
	if len(flasher.writtenTo) != 1 || flasher.writtenTo[0] != "/dev/sdb" {
		t.Errorf("wrote to wrong device: %v", flasher.writtenTo)
	}
	if len(flasher.ejected) != 1 {
		t.Error("device should be ejected after a successful write")
	}
	// confirmation names the specific device
	if !strings.Contains(prompter.confirmPrompts[0], "/dev/sdb") {
		t.Errorf("confirmation must name the device: %q", prompter.confirmPrompts[0])
	}
	// no selection prompt for a single candidate
	if prompter.selectCalls != 0 {
		t.Error("single candidate should skip selection")
	}
}

func TestGate_MultipleCandidatesSelection(t *testing.T) {
	flasher := &fakeFlasher{bytes: 42}
	prompter := &fakePrompter{confirmAnswer: true, selection: 1}
	gate := NewGate(&fakeEnum{lists: [][]blockdev.Device{{usbA, usbB}}}, prompter, flasher)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != StateDone || outcome.DevicePath != "/dev/sdc" {
		t.Errorf("expected done on /dev/sdc, got %+v", outcome)
	}
	if prompter.selectCalls != 1 {
		t.Error("multiple candidates require an explicit selection")
	}
	// usbB's mounted partition is unmounted before the write
	if len(flasher.unmounted) != 1 || flasher.unmounted[0] != "/media/usb" {
		t.Errorf("mounted partition not unmounted: %v", flasher.unmounted)
	}
}

func TestGate_InvalidSelectionDeclines(t *testing.T) {
	flasher := &fakeFlasher{}
	prompter := &fakePrompter{confirmAnswer: true, selectErr: fmt.Errorf("invalid selection")}
	gate := NewGate(&fakeEnum{lists: [][]blockdev.Device{{usbA, usbB}}}, prompter, flasher)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if err != nil {
		t.Fatalf("invalid selection must decline, got %v", err)
	}
	if outcome.State != StateDeclined {
		t.Errorf("expected declined, got %s", outcome.State)
	}
	if len(flasher.writtenTo) != 0 {
		t.Error("no write may be attempted without an explicit selection")
	}
}

func TestGate_InterruptedConfirmationDeclines(t *testing.T) {
	flasher := &fakeFlasher{}
	prompter := &fakePrompter{confirmAnswer: false, confirmErr: fmt.Errorf("input closed")}
	gate := NewGate(&fakeEnum{lists: [][]blockdev.Device{{usbA}}}, prompter, flasher)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if err != nil {
		t.Fatalf("interrupted input must decline, got %v", err)
	}
	if outcome.State != StateDeclined {
		t.Errorf("expected declined, got %s", outcome.State)
	}
	if len(flasher.writtenTo) != 0 {
		t.Error("no write may be attempted after interrupted input")
	}
}

func TestGate_DeviceSwappedBeforeWrite(t *testing.T) {
	// Confirm device A; by write time only device B is attached.
	flasher := &fakeFlasher{}
	gate := NewGate(
		&fakeEnum{lists: [][]blockdev.Device{{usbA}, {usbB}}},
		&fakePrompter{confirmAnswer: true},
		flasher,
	)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if !errors.Is(err, ErrDeviceChanged) {
		t.Fatalf("expected ErrDeviceChanged, got %v", err)
	}
	if outcome.State != StateWriteFailed {
		t.Errorf("expected write_failed, got %s", outcome.State)
	}
	if len(flasher.writtenTo) != 0 {
		t.Error("must not write a single byte to the substituted device")
	}
}

func TestGate_DeviceNoLongerRemovableBeforeWrite(t *testing.T) {
	swapped := usbA
	swapped.Removable = false

	flasher := &fakeFlasher{}
	gate := NewGate(
		&fakeEnum{lists: [][]blockdev.Device{{usbA}, {swapped}}},
		&fakePrompter{confirmAnswer: true},
		flasher,
	)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if !errors.Is(err, ErrNotRemovable) {
		t.Fatalf("expected ErrNotRemovable, got %v", err)
	}
	if outcome.State != StateWriteFailed {
		t.Errorf("expected write_failed, got %s", outcome.State)
	}
	if len(flasher.writtenTo) != 0 {
		t.Error("must not write to a device that lost its removable flag")
	}
}

func TestGate_WriteFailureReported(t *testing.T) {
	flasher := &fakeFlasher{writeErr: fmt.Errorf("input/output error")}
	gate := NewGate(
		&fakeEnum{lists: [][]blockdev.Device{{usbA}}},
		&fakePrompter{confirmAnswer: true},
		flasher,
	)

	outcome, err := gate.Run(context.Background(), "custom.iso")
	if err == nil {
		t.Fatal("a write error must surface, even after partial transfer")
	}
	if outcome.State != StateWriteFailed {
		t.Errorf("expected write_failed, got %s", outcome.State)
	}
	// failure message names the device path
	if !strings.Contains(err.Error(), "/dev/sdb") {
		t.Errorf("error must name the device: %v", err)
	}
	if len(flasher.ejected) != 0 {
		t.Error("no eject after a failed write")
	}
}

func TestGate_EnumerationFailure(t *testing.T) {
	gate := NewGate(
		&fakeEnum{err: fmt.Errorf("lsblk exploded")},
		&fakePrompter{confirmAnswer: true},
		&fakeFlasher{},
	)

	if _, err := gate.Run(context.Background(), "custom.iso"); err == nil {
		t.Fatal("enumeration failure must surface")
	}
}

package flash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// writeBufferSize is the chunk size for the raw block copy.
const writeBufferSize = 4 * 1024 * 1024

// Flasher performs the OS-level operations of the write path.
type Flasher interface {
	// Unmount detaches a mounted partition before the raw write.
	Unmount(ctx context.Context, mountPoint string) error

	// WriteImage copies the image onto the device block by block and
	// returns the bytes written, including on failure.
	WriteImage(ctx context.Context, imagePath, devicePath string) (int64, error)

	// Eject releases the device after a successful write. Best effort.
	Eject(ctx context.Context, devicePath string) error
}

// RawFlasher writes directly to the device node. Raw device access
// requires elevated privileges; an unprivileged run fails at open time
// with a clear permissions error.
type RawFlasher struct{}

// NewRawFlasher creates the real flasher.
func NewRawFlasher() *RawFlasher {
	return &RawFlasher{}
}

func (f *RawFlasher) Unmount(ctx context.Context, mountPoint string) error {
	out, err := exec.CommandContext(ctx, "umount", mountPoint).CombinedOutput()
	if err != nil {
		return fmt.Errorf("umount %s: %v: %s", mountPoint, err, out)
	}
	return nil
}

func (f *RawFlasher) WriteImage(ctx context.Context, imagePath, devicePath string) (int64, error) {
	src, err := os.Open(imagePath)
	if err != nil {
		return 0, fmt.Errorf("cannot open image %s: %w", imagePath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(devicePath, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return 0, fmt.Errorf("raw device access to %s requires elevated privileges (run as root): %w", devicePath, err)
		}
		return 0, fmt.Errorf("cannot open device %s: %w", devicePath, err)
	}
	defer dst.Close()

	slog.Info("raw_write_start", "image", imagePath, "device", devicePath)

	n, err := io.CopyBuffer(dst, &ctxReader{ctx: ctx, r: src}, make([]byte, writeBufferSize))
	if err != nil {
		return n, fmt.Errorf("block copy to %s: %w", devicePath, err)
	}

	// Data must be on the medium, not in the page cache, before the
	// write is reported successful.
	if err := dst.Sync(); err != nil {
		return n, fmt.Errorf("sync %s: %w", devicePath, err)
	}

	slog.Info("raw_write_complete", "device", devicePath, "bytes_written", n)
	return n, nil
}

func (f *RawFlasher) Eject(ctx context.Context, devicePath string) error {
	out, err := exec.CommandContext(ctx, "eject", devicePath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("eject %s: %v: %s", devicePath, err, out)
	}
	return nil
}

// ctxReader aborts the copy between chunks once the context is canceled,
// so an interrupt during Writing is reported as a failed write.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

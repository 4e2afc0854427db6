//go:build !linux

package blockdev

import (
	"context"
	"fmt"
	"runtime"
)

// StubEnumerator reports no devices on platforms without lsblk.
type StubEnumerator struct{}

// NewEnumerator creates a stub enumerator on non-Linux systems.
func NewEnumerator() (Enumerator, error) {
	return &StubEnumerator{}, nil
}

func (e *StubEnumerator) List(ctx context.Context) ([]Device, error) {
	return nil, fmt.Errorf("block device enumeration not supported on %s", runtime.GOOS)
}

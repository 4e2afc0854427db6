// Package blockdev enumerates whole-disk block devices and reports the
// OS removable-media flag that gates destructive writes.
package blockdev

import "context"

// Device identifies a candidate storage device at one instant in time.
// Device lists are never cached across invocations; hardware state can
// change between enumeration and use.
type Device struct {
	// Path is the OS device node, e.g. /dev/sdb.
	Path string
	// SizeBytes is the whole-disk capacity.
	SizeBytes int64
	// Removable is the OS-reported removable-media flag. It is the sole
	// basis for selecting a write target.
	Removable bool
	// Transport is the bus type reported by the OS (usb, sata, nvme, ...).
	Transport string
	// MountedPartitions lists mount points of any mounted partitions.
	MountedPartitions []string
}

// Enumerator lists whole-disk block devices visible to the OS right now.
type Enumerator interface {
	List(ctx context.Context) ([]Device, error)
}

// FindByPath returns the device with the given path, or nil.
func FindByPath(devices []Device, path string) *Device {
	for i := range devices {
		if devices[i].Path == path {
			return &devices[i]
		}
	}
	return nil
}

// FilterRemovable returns only devices flagged removable by the OS.
func FilterRemovable(devices []Device) []Device {
	var out []Device
	for _, d := range devices {
		if d.Removable {
			out = append(out, d)
		}
	}
	return out
}

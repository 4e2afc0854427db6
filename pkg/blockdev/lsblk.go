package blockdev

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// lsblk JSON shapes vary across util-linux versions: older releases emit
// every value as a string ("rm":"1", "size":"15376000000"), newer ones
// emit native booleans and numbers. boolFlag and byteCount accept both.

type boolFlag bool

func (b *boolFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", `"1"`:
		*b = true
	case "false", "null", `"0"`, `""`:
		*b = false
	default:
		return fmt.Errorf("unexpected boolean flag %s", data)
	}
	return nil
}

type byteCount int64

func (c *byteCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*c = 0
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("unexpected size value %s: %w", data, err)
	}
	*c = byteCount(n)
	return nil
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Size       byteCount     `json:"size"`
	Type       string        `json:"type"`
	Tran       string        `json:"tran"`
	RM         boolFlag      `json:"rm"`
	Mountpoint string        `json:"mountpoint"`
	Children   []lsblkDevice `json:"children"`
}

type lsblkOutput struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

// parseLsblk converts lsblk -J -b output into whole-disk Devices.
// Partitions are folded into their parent's MountedPartitions.
func parseLsblk(data []byte) ([]Device, error) {
	var out lsblkOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output: %w", err)
	}

	var devices []Device
	for _, bd := range out.Blockdevices {
		if bd.Type != "disk" {
			continue
		}

		dev := Device{
			Path:      "/dev/" + bd.Name,
			SizeBytes: int64(bd.Size),
			Removable: bool(bd.RM),
			Transport: bd.Tran,
		}
		for _, child := range bd.Children {
			if child.Mountpoint != "" {
				dev.MountedPartitions = append(dev.MountedPartitions, child.Mountpoint)
			}
		}
		if bd.Mountpoint != "" {
			// Whole-disk filesystems mount without a partition table.
			dev.MountedPartitions = append(dev.MountedPartitions, bd.Mountpoint)
		}
		devices = append(devices, dev)
	}

	return devices, nil
}

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/blockdev"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	"github.com/spf13/cobra"
)

var devicesAll bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List removable storage devices",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().BoolVar(&devicesAll, "all", false, "Include non-removable disks")
}

func runDevices(cmd *cobra.Command, args []string) error {
	enum, err := blockdev.NewEnumerator()
	if err != nil {
		return errors.Wrap(err, "device enumeration unavailable")
	}

	devices, err := enum.List(context.Background())
	if err != nil {
		return errors.Wrap(err, "device enumeration failed")
	}

	if !devicesAll {
		devices = blockdev.FilterRemovable(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No removable devices found")
		return nil
	}

	fmt.Printf("%-16s %-12s %-10s %-10s %s\n", "DEVICE", "SIZE", "BUS", "REMOVABLE", "MOUNTED")
	fmt.Println("----------------------------------------------------------------------")
	for _, dev := range devices {
		mounts := "-"
		if len(dev.MountedPartitions) > 0 {
			mounts = strings.Join(dev.MountedPartitions, ", ")
		}
		bus := dev.Transport
		if bus == "" {
			bus = "-"
		}
		fmt.Printf("%-16s %-12s %-10s %-10v %s\n",
			dev.Path, humanize.IBytes(uint64(dev.SizeBytes)), bus, dev.Removable, mounts)
	}

	return nil
}

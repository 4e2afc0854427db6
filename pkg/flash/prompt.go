package flash

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/flintwinters/custom-debian-iso-builder/pkg/blockdev"
)

// Prompter abstracts the interactive surface so the gate is testable with
// scripted input. Implementations block indefinitely on human input;
// no timeout is imposed on consent.
type Prompter interface {
	// Confirm asks a yes/no question. Only an explicit affirmative
	// answer returns true.
	Confirm(prompt string) (bool, error)

	// SelectOne presents candidates and returns the chosen index.
	// There is no default; a non-answer is an error.
	SelectOne(candidates []blockdev.Device) (int, error)
}

// TerminalPrompter reads answers line by line from a terminal.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter over the given streams.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *TerminalPrompter) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		// Interrupted or closed input is a decline, not an error.
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *TerminalPrompter) SelectOne(candidates []blockdev.Device) (int, error) {
	fmt.Fprintln(p.out, "Removable devices detected:")
	for i, dev := range candidates {
		mounts := "not mounted"
		if len(dev.MountedPartitions) > 0 {
			mounts = "mounted: " + strings.Join(dev.MountedPartitions, ", ")
		}
		fmt.Fprintf(p.out, "  %d: %s (%s, %s, %s)\n",
			i+1, dev.Path, humanize.IBytes(uint64(dev.SizeBytes)), transportLabel(dev), mounts)
	}
	fmt.Fprintf(p.out, "Enter the number of the device to flash: ")

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return -1, fmt.Errorf("no selection made")
	}

	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return -1, fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
	}
	if choice < 1 || choice > len(candidates) {
		return -1, fmt.Errorf("selection %d out of range", choice)
	}
	return choice - 1, nil
}

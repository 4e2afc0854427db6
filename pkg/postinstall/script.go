package postinstall

import (
	"fmt"
	"strings"
)

// Generate renders the provisioning shell script from a validated config.
// Pure function: no I/O, no clock, no randomness. Identical input produces
// byte-identical output, so the staged image is reproducible.
func Generate(cfg *Config) string {
	var b strings.Builder

	b.WriteString("#!/bin/bash\n")
	b.WriteString("set -e\n\n")

	b.WriteString("# --- Install packages ---\n")
	b.WriteString("apt-get update\n")
	if len(cfg.Packages) > 0 {
		b.WriteString("apt-get install -y --no-install-recommends ")
		b.WriteString(strings.Join(cfg.Packages, " "))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("# --- Generate SSH key ---\n")
	fmt.Fprintf(&b, "sudo -u %s ssh-keygen -t %s -f /home/%s/.ssh/id_%s -N \"\"\n\n",
		cfg.SSHKey.User, cfg.SSHKey.Algorithm, cfg.SSHKey.User, cfg.SSHKey.Algorithm)

	b.WriteString("# --- Clean up ---\n")
	b.WriteString("apt-get clean\n")
	b.WriteString("rm -rf /var/lib/apt/lists/*\n\n")

	b.WriteString("echo \"Post-installation setup complete.\"\n")

	return b.String()
}

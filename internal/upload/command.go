package upload

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// commandTimeout bounds one shell upload; large segments over slow uplinks
// need minutes, not seconds.
const commandTimeout = 300 * time.Second

// runUploadCommand substitutes the placeholders and runs the template
// through the shell, so operators can use pipes and globs (rclone, scp,
// curl one-liners).
func runUploadCommand(ctx context.Context, template, path, channel, filename string) error {
	cmdline := strings.NewReplacer(
		"{file}", path,
		"{channel}", channel,
		"{filename}", filename,
	).Replace(template)

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg != "" {
			return fmt.Errorf("upload command: %w: %s", err, msg)
		}
		return fmt.Errorf("upload command: %w", err)
	}
	return nil
}

package auth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultHelperTimeout = 10 * time.Second

// CommandOracle shells out to a helper binary. The helper receives the
// nonce, user name and password as argv and prints the hash on stdout.
type CommandOracle struct {
	// Path to the helper binary. Empty means no helper is configured.
	Path string
	// Timeout bounds one helper invocation. Zero applies the default.
	Timeout time.Duration
}

// LoginHash implements Oracle.
func (o *CommandOracle) LoginHash(ctx context.Context, nonce, username, password string) (string, error) {
	if o.Path == "" {
		return "", ErrUnavailable
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultHelperTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.Path, nonce, username, password)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("auth: hash helper: %w: %s", err, msg)
		}
		return "", fmt.Errorf("auth: hash helper: %w", err)
	}

	hash := strings.TrimSpace(stdout.String())
	if hash == "" {
		return "", ErrUnavailable
	}
	return hash, nil
}

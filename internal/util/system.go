package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNoSystemctl is returned when the host has no systemctl on PATH.
var ErrNoSystemctl = errors.New("systemctl not found")

const (
	stateTimeout   = 3 * time.Second
	restartTimeout = 10 * time.Second
)

func IsRoot() bool {
	return os.Geteuid() == 0
}

// systemctl runs one systemctl command against unit and returns its
// trimmed stdout. A non-zero exit is not an error for query verbs, so the
// caller decides from the output.
func systemctl(ctx context.Context, timeout time.Duration, verb, unit string) (string, error) {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return "", errors.New("empty unit name")
	}
	path, err := exec.LookPath("systemctl")
	if err != nil {
		return "", ErrNoSystemctl
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, verb, unit)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err != nil && ctx.Err() != nil {
		return "", fmt.Errorf("systemctl %s %s: %w", verb, unit, ctx.Err())
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return strings.TrimSpace(out.String()), fmt.Errorf("systemctl %s %s: %w", verb, unit, err)
	}
	return strings.TrimSpace(out.String()), nil
}

// ServiceState returns the unit's state as "systemctl is-active" prints
// it (active, inactive, failed, ...), or "" when it cannot be queried.
func ServiceState(ctx context.Context, unit string) string {
	state, _ := systemctl(ctx, stateTimeout, "is-active", unit)
	return state
}

func ServiceIsActive(ctx context.Context, unit string) bool {
	return ServiceState(ctx, unit) == "active"
}

// RestartService restarts unit and waits for systemctl to return.
func RestartService(ctx context.Context, unit string) error {
	_, err := systemctl(ctx, restartTimeout, "restart", unit)
	return err
}

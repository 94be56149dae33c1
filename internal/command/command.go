// Package command runs external programs: adb, relay box tools, flashing
// scripts and application launchers.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned for an empty argument vector.
var ErrEmptyCommand = errors.New("command: empty argument vector")

// Runner runs a program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// Run implements Runner. Standard error is folded into the returned error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// RunArgv runs argv[0] with the remaining elements as arguments.
func RunArgv(ctx context.Context, r Runner, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return r.Run(ctx, argv[0], argv[1:]...)
}

// Package runner runs external commands and the generated playbooks.
package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
)

// Executor runs an external command to completion
type Executor interface {
	Run(ctx context.Context, argv ...string) error
}

// OutputExecutor also returns what a command prints on stdout
type OutputExecutor interface {
	Executor
	Output(ctx context.Context, argv ...string) ([]byte, error)
}

// Command runs programs on the host
type Command struct {
	// Env is appended to the current environment
	Env []string

	// Stdout receives the command output. Nil discards it.
	Stdout io.Writer

	// Stderr receives error output in addition to the copy kept for errors.
	// Nil keeps only the copy.
	Stderr io.Writer
}

// NewCommand returns a Command streaming output to the process stdout/stderr
func NewCommand(env ...string) *Command {
	return &Command{
		Env:    env,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes argv and blocks until it exits. A non-zero exit, or a command
// that cannot be started, is a *types.ProvisioningError.
func (c *Command) Run(ctx context.Context, argv ...string) error {
	return c.run(ctx, c.Stdout, argv)
}

// Output is Run returning stdout instead of streaming it
func (c *Command) Output(ctx context.Context, argv ...string) ([]byte, error) {
	var stdout bytes.Buffer
	if err := c.run(ctx, &stdout, argv); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

func (c *Command) run(ctx context.Context, stdout io.Writer, argv []string) error {
	if len(argv) == 0 {
		return &types.ProvisioningError{Err: errors.New("no command specified")}
	}

	logger := log.WithComponent("runner")
	logger.Debug().Strs("argv", argv).Msg("Running command")

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stderr bytes.Buffer
	cmd.Stdout = stdout
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, c.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		perr := &types.ProvisioningError{
			Command: argv,
			Stderr:  stderr.String(),
			Err:     err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		logger.Error().Err(err).Strs("argv", argv).Msg("Command failed")
		return perr
	}

	return nil
}

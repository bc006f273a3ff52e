package derived

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrExternalToolFailed is matched by every *ToolFailedError.
var ErrExternalToolFailed = errors.New("external tool failed")

// ToolFailedError reports a failed external executable.
type ToolFailedError struct {
	Command string
	Args    []string
	Output  string
	Err     error
}

func (e *ToolFailedError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Command, strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ToolFailedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrExternalToolFailed) true.
func (e *ToolFailedError) Is(target error) bool { return target == ErrExternalToolFailed }

// ToolRunner runs an external executable to completion.
type ToolRunner interface {
	Run(ctx context.Context, command string, args ...string) error
}

// ExecRunner runs tools as local processes.
type ExecRunner struct{}

const maxOutput = 4096

// Run implements ToolRunner. A non-zero exit is a *ToolFailedError.
func (ExecRunner) Run(ctx context.Context, command string, args ...string) error {
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(output.String())
		if len(out) > maxOutput {
			out = out[len(out)-maxOutput:]
		}
		return &ToolFailedError{Command: command, Args: args, Output: out, Err: err}
	}
	return nil
}

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Language identifies an entry in the configured language table
type Language string

// Built-in languages
const (
	LanguagePython Language = "python"
	LanguageNode   Language = "node"
	LanguageShell  Language = "shell"
)

// SandboxRequest represents the caller's execution request
type SandboxRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ResourceLimits holds Kubernetes quantity strings applied to the execution unit
type ResourceLimits struct {
	CPU    string
	Memory string
}

// SandboxSpec is the image, argv and limits derived from a request
type SandboxSpec struct {
	Language   Language
	Image      string
	Entrypoint []string
	Limits     ResourceLimits
}

// Job is one execution unit owned by a single orchestration
type Job struct {
	ID        string
	Namespace string
	Spec      SandboxSpec
	CreatedAt time.Time
}

// Phase mirrors the pod lifecycle phase
type Phase string

// Pod phases
const (
	PhasePending   Phase = "Pending"
	PhaseRunning   Phase = "Running"
	PhaseSucceeded Phase = "Succeeded"
	PhaseFailed    Phase = "Failed"
	PhaseUnknown   Phase = "Unknown"
)

// UnitStatus is the subset of execution unit status the orchestrator reads
type UnitStatus struct {
	Phase          Phase
	WaitingReason  string
	WaitingMessage string
}

// LifecycleClient is the narrow interface the orchestrator uses against the
// backend that hosts execution units. Implementations return ErrNotFound,
// ErrAlreadyExists or a Permanent error where they can tell; any other error
// is treated as transient.
type LifecycleClient interface {
	Create(ctx context.Context, job *Job) error
	Status(ctx context.Context, job *Job) (UnitStatus, error)
	// Logs returns the combined output of the unit's single container.
	Logs(ctx context.Context, job *Job) (string, error)
	// Delete removes the unit. A unit that is already gone is not an error.
	Delete(ctx context.Context, job *Job) error
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // argv is built by ContainerCLIClient, never a shell string

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

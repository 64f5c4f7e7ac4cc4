package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/api/resource"
)

// LabelCreatedAt carries the creation time in unix seconds on CLI-managed
// containers, where the runtimes disagree on the inspect time format.
const LabelCreatedAt = "coderunner.isdmx.io/created-at"

const defaultPidsLimit = 64

// ContainerCLIClient implements LifecycleClient by driving the docker or
// podman CLI. Both accept the same flags for everything used here.
type ContainerCLIClient struct {
	logger    *zap.Logger
	binary    string
	cmdRunner CommandRunner
	pidsLimit int
}

var _ LifecycleClient = (*ContainerCLIClient)(nil)

// ContainerCLIOption defines a functional option for ContainerCLIClient
type ContainerCLIOption func(*ContainerCLIClient)

// WithCommandRunner sets the CommandRunner for ContainerCLIClient
func WithCommandRunner(cmdRunner CommandRunner) ContainerCLIOption {
	return func(c *ContainerCLIClient) {
		c.cmdRunner = cmdRunner
	}
}

// WithPidsLimit sets the --pids-limit passed to run
func WithPidsLimit(limit int) ContainerCLIOption {
	return func(c *ContainerCLIClient) {
		c.pidsLimit = limit
	}
}

// NewContainerCLIClient creates a client for binary ("docker" or "podman")
func NewContainerCLIClient(logger *zap.Logger, binary string, opts ...ContainerCLIOption) *ContainerCLIClient {
	client := &ContainerCLIClient{
		logger:    logger,
		binary:    binary,
		cmdRunner: RealCommandRunner{},
		pidsLimit: defaultPidsLimit,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Create starts a detached container for job. The image is pulled by the
// runtime if missing, so pull failures surface here.
func (c *ContainerCLIClient) Create(ctx context.Context, job *Job) error {
	args, err := c.runArgs(job)
	if err != nil {
		return Permanent(err)
	}

	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, args)
	if err != nil {
		return fmt.Errorf("%s run: %w", c.binary, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s run %s: %w", c.binary, job.ID, cliError(stderr))
	}

	c.logger.Debug("container started", zap.String("container", job.ID), zap.String("runtime", c.binary))
	return nil
}

// Status maps the container state onto pod phases
func (c *ContainerCLIClient) Status(ctx context.Context, job *Job) (UnitStatus, error) {
	stdout, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{
		c.binary, "inspect", "--format", "{{.State.Status}} {{.State.ExitCode}}", job.ID,
	})
	if err != nil {
		return UnitStatus{}, fmt.Errorf("%s inspect: %w", c.binary, err)
	}
	if exitCode != 0 {
		return UnitStatus{}, fmt.Errorf("%s inspect %s: %w", c.binary, job.ID, cliError(stderr))
	}

	fields := strings.Fields(stdout)
	if len(fields) != 2 {
		return UnitStatus{}, fmt.Errorf("unexpected inspect output %q", strings.TrimSpace(stdout))
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return UnitStatus{}, fmt.Errorf("unexpected exit code %q: %w", fields[1], err)
	}

	return UnitStatus{Phase: containerPhase(fields[0], code)}, nil
}

// Logs returns the container's stdout followed by its stderr
func (c *ContainerCLIClient) Logs(ctx context.Context, job *Job) (string, error) {
	stdout, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.binary, "logs", job.ID})
	if err != nil {
		return "", fmt.Errorf("%s logs: %w", c.binary, err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("%s logs %s: %w", c.binary, job.ID, cliError(stderr))
	}
	return stdout + stderr, nil
}

// Delete force-removes the container. A missing container is not an error.
func (c *ContainerCLIClient) Delete(ctx context.Context, job *Job) error {
	return c.remove(ctx, job.ID)
}

// Sweep removes managed containers created more than maxAge ago. The
// namespace is ignored; containers are host-global.
func (c *ContainerCLIClient) Sweep(ctx context.Context, _ string, maxAge time.Duration) (int, error) {
	stdout, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{
		c.binary, "ps", "-a",
		"--filter", "label=" + LabelManagedBy + "=" + ManagedByValue,
		"--format", "{{.Names}}",
	})
	if err != nil {
		return 0, fmt.Errorf("%s ps: %w", c.binary, err)
	}
	if exitCode != 0 {
		return 0, fmt.Errorf("%s ps: %w", c.binary, cliError(stderr))
	}

	names := strings.Fields(stdout)
	if len(names) == 0 {
		return 0, nil
	}

	args := append([]string{
		c.binary, "inspect", "--format",
		`{{.Name}} {{index .Config.Labels "` + LabelCreatedAt + `"}}`,
	}, names...)
	stdout, stderr, exitCode, err = c.cmdRunner.RunCommand(ctx, args)
	if err != nil {
		return 0, fmt.Errorf("%s inspect: %w", c.binary, err)
	}
	if exitCode != 0 {
		return 0, fmt.Errorf("%s inspect: %w", c.binary, cliError(stderr))
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		created, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || time.Unix(created, 0).After(cutoff) {
			continue
		}

		name := strings.TrimPrefix(fields[0], "/")
		if err := c.remove(ctx, name); err != nil {
			c.logger.Warn("failed to remove stale container", zap.String("container", name), zap.Error(err))
			continue
		}
		removed++
	}

	return removed, nil
}

func (c *ContainerCLIClient) remove(ctx context.Context, name string) error {
	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.binary, "rm", "-f", name})
	if err != nil {
		return fmt.Errorf("%s rm: %w", c.binary, err)
	}
	if exitCode != 0 {
		cerr := cliError(stderr)
		if errors.Is(cerr, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%s rm %s: %w", c.binary, name, cerr)
	}
	return nil
}

func (c *ContainerCLIClient) runArgs(job *Job) ([]string, error) {
	if len(job.Spec.Entrypoint) == 0 {
		return nil, fmt.Errorf("empty entrypoint")
	}

	cpu, err := resource.ParseQuantity(job.Spec.Limits.CPU)
	if err != nil {
		return nil, fmt.Errorf("invalid cpu limit %q: %w", job.Spec.Limits.CPU, err)
	}
	memory, err := resource.ParseQuantity(job.Spec.Limits.Memory)
	if err != nil {
		return nil, fmt.Errorf("invalid memory limit %q: %w", job.Spec.Limits.Memory, err)
	}

	args := []string{
		c.binary, "run", "-d",
		"--name", job.ID,
		"--label", LabelManagedBy + "=" + ManagedByValue,
		"--label", LabelLanguage + "=" + string(job.Spec.Language),
		"--label", LabelCreatedAt + "=" + strconv.FormatInt(job.CreatedAt.Unix(), 10),
		"--network", "none",
		"--memory", fmt.Sprintf("%db", memory.Value()),
		"--cpus", strconv.FormatFloat(cpu.AsApproximateFloat64(), 'f', -1, 64),
		"--pids-limit", strconv.Itoa(c.pidsLimit),
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		"--user", "nobody",
		"--entrypoint", job.Spec.Entrypoint[0],
		job.Spec.Image,
	}
	args = append(args, job.Spec.Entrypoint[1:]...)

	return args, nil
}

func containerPhase(state string, exitCode int) Phase {
	switch state {
	case "created", "configured", "initialized":
		return PhasePending
	case "running", "restarting", "paused", "stopping":
		return PhaseRunning
	case "exited", "stopped":
		if exitCode == 0 {
			return PhaseSucceeded
		}
		return PhaseFailed
	case "dead":
		return PhaseFailed
	default:
		return PhaseUnknown
	}
}

// cliError maps runtime stderr onto the LifecycleClient error vocabulary
func cliError(stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	err := errors.New(msg)

	switch {
	case strings.Contains(lower, "no such container"),
		strings.Contains(lower, "no such object"),
		strings.Contains(lower, "no container with name or id"):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case strings.Contains(lower, "already in use"):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
	case strings.Contains(lower, "pull access denied"),
		strings.Contains(lower, "manifest unknown"),
		strings.Contains(lower, "invalid reference format"),
		strings.Contains(lower, "unknown flag"):
		return Permanent(err)
	default:
		return err
	}
}

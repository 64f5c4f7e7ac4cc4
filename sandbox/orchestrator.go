package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/metrics"
)

// unrecoverableReasons are container waiting reasons that never resolve on
// their own. Seeing one ends polling immediately.
var unrecoverableReasons = map[string]bool{
	"CreateContainerConfigError": true,
	"CreateContainerError":       true,
	"ImagePullBackOff":           true,
	"ErrImagePull":               true,
	"InvalidImageName":           true,
}

// Runner executes one SandboxSpec to a terminal outcome
type Runner interface {
	Run(ctx context.Context, spec SandboxSpec) Outcome
}

// OrchestratorConfig holds the polling policy and placement for jobs
type OrchestratorConfig struct {
	Namespace     string
	PodNamePrefix string
	PollInterval  time.Duration
	MaxWait       time.Duration
	LogTimeout    time.Duration
	DeleteTimeout time.Duration
}

// Orchestrator drives one execution unit per Run call through
// create, poll, log retrieval and teardown.
type Orchestrator struct {
	client LifecycleClient
	logger *zap.Logger
	cfg    OrchestratorConfig
	newID  func() string
}

var _ Runner = (*Orchestrator)(nil)

// OrchestratorOption defines a functional option for Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithIDGenerator replaces the job id generator
func WithIDGenerator(fn func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// DefaultPollInterval is used when OrchestratorConfig.PollInterval is not positive
const DefaultPollInterval = 500 * time.Millisecond

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(logger *zap.Logger, client LifecycleClient, cfg OrchestratorConfig, opts ...OrchestratorOption) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	o := &Orchestrator{
		client: client,
		logger: logger,
		cfg:    cfg,
	}
	o.newID = func() string { return NewJobID(cfg.PodNamePrefix) }

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// NewOrchestratorFromConfig creates an Orchestrator from the application configuration
func NewOrchestratorFromConfig(logger *zap.Logger, client LifecycleClient, cfg *config.Config) *Orchestrator {
	return NewOrchestrator(logger, client, OrchestratorConfig{
		Namespace:     cfg.Cluster.Namespace,
		PodNamePrefix: cfg.Cluster.PodNamePrefix,
		PollInterval:  cfg.PollInterval(),
		MaxWait:       cfg.MaxWait(),
		LogTimeout:    cfg.LogTimeout(),
		DeleteTimeout: cfg.DeleteTimeout(),
	})
}

// Run creates an execution unit for spec, polls it until a terminal state or
// the MaxWait deadline (measured from creation), collects its logs and
// deletes it. Cancellation of ctx is ignored so that the unit is always torn
// down; every wait is bounded by the configured timeouts instead.
func (o *Orchestrator) Run(ctx context.Context, spec SandboxSpec) (outcome Outcome) {
	ctx = context.WithoutCancel(ctx)

	job := &Job{
		ID:        o.newID(),
		Namespace: o.cfg.Namespace,
		Spec:      spec,
		CreatedAt: time.Now(),
	}
	log := o.logger.With(
		zap.String("job_id", job.ID),
		zap.String("namespace", job.Namespace),
		zap.String("language", string(spec.Language)),
	)
	guard := newTeardown(o.client, job, o.cfg.DeleteTimeout, log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("orchestration panicked", zap.Any("panic", r), zap.Stack("stack"))
			outcome = Outcome{Kind: OutcomeTransportError, Detail: fmt.Sprintf("internal error: %v", r)}
		}
		guard.ensureDeleted(ctx)

		outcome.JobID = job.ID
		elapsed := time.Since(job.CreatedAt)
		metrics.ExecutionsTotal.WithLabelValues(string(spec.Language), string(outcome.Kind)).Inc()
		metrics.ExecutionDuration.WithLabelValues(string(spec.Language), string(outcome.Kind)).Observe(elapsed.Seconds())
		log.Info("execution finished",
			zap.String("outcome", string(outcome.Kind)),
			zap.Duration("elapsed", elapsed),
			zap.Bool("logs_degraded", outcome.LogsDegraded))
	}()

	runCtx, cancel := context.WithDeadline(ctx, job.CreatedAt.Add(o.cfg.MaxWait))
	defer cancel()

	if err := o.client.Create(runCtx, job); err != nil {
		if errors.Is(err, ErrAlreadyExists) || IsPermanent(err) {
			guard.disarm()
		}
		log.Error("failed to create execution unit", zap.Error(err))
		return transportError(err)
	}
	guard.created()
	log.Info("execution unit created", zap.String("image", spec.Image))

	outcome = o.poll(runCtx, job, log)

	switch outcome.Kind {
	case OutcomeSucceeded, OutcomeFailed, OutcomeStartupError:
		outcome.Logs, outcome.LogsDegraded = o.collectLogs(ctx, job, log)
	}

	return outcome
}

// poll reads the unit status every PollInterval until it is terminal, an
// unrecoverable startup condition is reported, or ctx's deadline passes.
// Transient status errors are retried within the same deadline.
func (o *Orchestrator) poll(ctx context.Context, job *Job, log *zap.Logger) Outcome {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := o.client.Status(ctx, job)
		switch {
		case err == nil:
			lastErr = nil
			if outcome, done := classify(status); done {
				return outcome
			}
			log.Debug("waiting for execution unit",
				zap.String("phase", string(status.Phase)),
				zap.String("waiting_reason", status.WaitingReason))
		case ctx.Err() != nil:
			// The deadline interrupted the call; not a backend fault.
		case errors.Is(err, ErrNotFound), IsPermanent(err):
			log.Error("status poll failed permanently", zap.Error(err))
			return transportError(err)
		default:
			lastErr = err
			metrics.PollErrorsTotal.Inc()
			log.Warn("status poll failed, retrying", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				log.Error("wait budget exhausted after status errors", zap.Error(lastErr))
				return transportError(lastErr)
			}
			log.Warn("execution timed out")
			return Outcome{Kind: OutcomeTimedOut}
		case <-ticker.C:
		}
	}
}

func classify(status UnitStatus) (Outcome, bool) {
	switch status.Phase {
	case PhaseSucceeded:
		return Outcome{Kind: OutcomeSucceeded}, true
	case PhaseFailed:
		return Outcome{Kind: OutcomeFailed}, true
	}

	if unrecoverableReasons[status.WaitingReason] {
		reason := status.WaitingMessage
		if reason == "" {
			reason = status.WaitingReason
		}
		return Outcome{Kind: OutcomeStartupError, Reason: reason}, true
	}

	return Outcome{}, false
}

// collectLogs never changes the classification: a failure degrades the
// payload to LogsUnavailablePlaceholder.
func (o *Orchestrator) collectLogs(ctx context.Context, job *Job, log *zap.Logger) (logs string, degraded bool) {
	logCtx, cancel := context.WithTimeout(ctx, o.cfg.LogTimeout)
	defer cancel()

	logs, err := o.readLogs(logCtx, job)
	if err != nil {
		metrics.LogRetrievalFailuresTotal.Inc()
		log.Warn("failed to retrieve logs", zap.Error(err))
		return LogsUnavailablePlaceholder, true
	}
	return logs, false
}

func (o *Orchestrator) readLogs(ctx context.Context, job *Job) (logs string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("logs panicked: %v", r)
		}
	}()
	return o.client.Logs(ctx, job)
}

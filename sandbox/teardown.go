package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/metrics"
)

// teardown deletes one job's execution unit at most once. It is armed when
// the job is created and fired from the orchestration's single deferred
// cleanup, whichever exit path was taken.
type teardown struct {
	once    sync.Once
	client  LifecycleClient
	job     *Job
	timeout time.Duration
	logger  *zap.Logger

	armed bool
	live  bool
}

func newTeardown(client LifecycleClient, job *Job, timeout time.Duration, logger *zap.Logger) *teardown {
	return &teardown{
		client:  client,
		job:     job,
		timeout: timeout,
		logger:  logger,
		armed:   true,
	}
}

// disarm skips deletion. Used when create was rejected outright, so the
// name may belong to someone else.
func (t *teardown) disarm() {
	t.armed = false
}

// created records that the unit exists and counts it as active.
func (t *teardown) created() {
	t.live = true
	metrics.PodsActive.Inc()
}

// ensureDeleted runs Delete on a context detached from ctx's cancellation
// and bounded by the teardown timeout. Failures are logged and counted,
// never returned.
func (t *teardown) ensureDeleted(ctx context.Context) {
	t.once.Do(func() {
		if t.live {
			defer metrics.PodsActive.Dec()
		}
		if !t.armed {
			return
		}

		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()

		err := t.delete(delCtx)
		switch {
		case err == nil, errors.Is(err, ErrNotFound):
			t.logger.Debug("execution unit deleted")
		default:
			metrics.TeardownFailuresTotal.Inc()
			t.logger.Error("failed to delete execution unit", zap.Error(err))
		}
	})
}

func (t *teardown) delete(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delete panicked: %v", r)
		}
	}()
	return t.client.Delete(ctx, t.job)
}

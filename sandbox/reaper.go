package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/metrics"
)

// Sweeper removes managed execution units older than maxAge
type Sweeper interface {
	Sweep(ctx context.Context, namespace string, maxAge time.Duration) (int, error)
}

var (
	_ Sweeper = (*KubernetesClient)(nil)
	_ Sweeper = (*ContainerCLIClient)(nil)
)

// Reaper periodically deletes units whose teardown never completed, for
// example because the process was killed mid-request.
type Reaper struct {
	sweeper   Sweeper
	logger    *zap.Logger
	namespace string
	interval  time.Duration
	maxAge    time.Duration
	timeout   time.Duration
	stop      chan struct{}
	done      chan struct{}
}

// NewReaper creates a Reaper
func NewReaper(logger *zap.Logger, sweeper Sweeper, namespace string, interval, maxAge time.Duration) *Reaper {
	return &Reaper{
		sweeper:   sweeper,
		logger:    logger,
		namespace: namespace,
		interval:  interval,
		maxAge:    maxAge,
		timeout:   interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// NewReaperFromConfig returns nil when the reaper is disabled or the
// backend cannot list its units.
func NewReaperFromConfig(logger *zap.Logger, client LifecycleClient, cfg *config.Config) *Reaper {
	sweeper, ok := client.(Sweeper)
	if !ok || cfg.Cluster.ReaperIntervalSec == 0 || cfg.Cluster.ReaperMaxAgeSec == 0 {
		return nil
	}
	return NewReaper(logger, sweeper, cfg.Cluster.Namespace,
		time.Duration(cfg.Cluster.ReaperIntervalSec)*time.Second,
		time.Duration(cfg.Cluster.ReaperMaxAgeSec)*time.Second)
}

// Start begins the periodic sweep loop
func (r *Reaper) Start() {
	go r.loop()
	r.logger.Info("reaper started", zap.Duration("interval", r.interval), zap.Duration("max_age", r.maxAge))
}

// Stop signals the loop to exit and waits for it to finish
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
	r.logger.Info("reaper stopped")
}

func (r *Reaper) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Warn("reaper sweep failed", zap.Error(err))
			}
			cancel()
		case <-r.stop:
			return
		}
	}
}

// Sweep runs one pass and returns the number of units removed
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	removed, err := r.sweeper.Sweep(ctx, r.namespace, r.maxAge)
	if removed > 0 {
		metrics.PodsReapedTotal.Add(float64(removed))
		r.logger.Info("reaped stale execution units", zap.Int("count", removed))
	}
	return removed, err
}

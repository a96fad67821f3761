// Package scheduler runs periodic maintenance over the local draft store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/draftstore"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/metrics"
)

const jobPurgeExpiredDrafts = "purge_expired_drafts"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Store   draftstore.Store
	Log     *zap.Logger
	Clock   clock.Scheduler
	Config  Config           `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Scheduler struct {
	purger  draftstore.Purger
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Store == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	purger, _ := p.Store.(draftstore.Purger)
	return &Scheduler{
		purger:  purger,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		metrics: p.Metrics,
	}, nil
}

// Enabled reports whether the configured store needs purging. Backends that
// expire entries natively have nothing to do.
func (s *Scheduler) Enabled() bool {
	return s.purger != nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	if err == nil {
		s.metrics.ObserveJob(ctx, name, "success", elapsed)
		log.Debug("job finished", zap.Duration("elapsed", elapsed))
		return nil
	}

	// deadline is a soft timeout; the next run picks up the remainder
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.ObserveJob(ctx, name, "timeout", elapsed)
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	s.metrics.ObserveJob(ctx, name, "failure", elapsed)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.runJob(parent, jobPurgeExpiredDrafts, s.cfg.JobTimeout, func(ctx context.Context) error {
		_, err := s.PurgeExpired(ctx)
		return err
	})
}

// PurgeExpired removes expired drafts in batches until a short batch is seen.
func (s *Scheduler) PurgeExpired(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	var total int64
	for {
		removed, err := s.purger.PurgeExpired(ctx, s.cfg.BatchSize)
		total += removed
		s.metrics.RecordDraftsPurged(ctx, removed)
		if err != nil {
			return total, err
		}
		if removed < int64(s.cfg.BatchSize) {
			break
		}
	}
	if total > 0 {
		s.log.Info("purged expired drafts", zap.Int64("count", total))
	}
	return total, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package scheduler

import (
	"context"

	"go.uber.org/fx"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartScheduler),
)

// StartScheduler runs the purge loop for the app lifetime when drafts expire.
func StartScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if cfg.Drafts.TTL <= 0 || !sched.Enabled() {
		return
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

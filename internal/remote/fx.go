package remote

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/metrics"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

var Module = fx.Module("remote",
	fx.Provide(NewCredentials),
	fx.Provide(NewAuthority),
)

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	Metrics     *metrics.Metrics `optional:"true"`
	Credentials Credentials
}

// NewCredentials prefers a signed store token when a shared secret is configured.
func NewCredentials(cfg config.Config, c clock.Scheduler) (Credentials, error) {
	if cfg.Authority.JWTSecret != "" {
		subject := cfg.Authority.Subject
		if subject == "" {
			subject = cfg.AppName
		}
		provider, err := NewJWTProvider(cfg.Authority.JWTSecret, subject, cfg.StoreID, 0, c)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
	return StaticToken(cfg.Authority.Token), nil
}

func NewAuthority(p Params) (domain.Authority, error) {
	client, err := NewClient(Options{
		BaseURL:     p.Cfg.Authority.BaseURL,
		Credentials: p.Credentials,
		Timeout:     p.Cfg.Authority.Timeout,
		Log:         p.Log,
		Metrics:     p.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

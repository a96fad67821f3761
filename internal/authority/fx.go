package authority

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/approval"
	authoritydomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/repository"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/service"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
)

var Module = fx.Module("authority",
	fx.Provide(repository.Provide),
	fx.Provide(approval.NewGate),
	fx.Provide(service.NewService),
	fx.Invoke(seedCatalog),
)

type catalogFile struct {
	Items []authoritydomain.CatalogSeed `yaml:"items"`
}

// LoadCatalogSeed reads suggestion sources from a YAML file.
func LoadCatalogSeed(path string) ([]authoritydomain.CatalogSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	return file.Items, nil
}

func seedCatalog(lc fx.Lifecycle, cfg config.Config, svc authoritydomain.Service, log *zap.Logger) {
	path := cfg.Authority.CatalogSeedPath
	if path == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			items, err := LoadCatalogSeed(path)
			if err != nil {
				return err
			}
			if err := svc.SeedCatalog(ctx, items); err != nil {
				return err
			}
			log.Info("catalog seeded", zap.String("path", path), zap.Int("items", len(items)))
			return nil
		},
	})
}

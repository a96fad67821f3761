package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	pkgdb "github.com/DikshantJangra/hoperxpharma-sub011/pkg/db"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg pkgdb.Config) error {
		if !cfg.IsPostgres() {
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

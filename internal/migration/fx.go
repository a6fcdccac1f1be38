package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module brings the sensor_readings and config tables up to date while the
// graph is built, ahead of every OnStart hook. A failure aborts startup.
var Module = fx.Module("migration",
	fx.Invoke(runMigrations),
)

func runMigrations(conn *gorm.DB, log *zap.Logger) error {
	dialect := conn.Dialector.Name()
	if err := Run(conn); err != nil {
		log.Error("schema migration failed", zap.String("dialect", dialect), zap.Error(err))
		return err
	}
	log.Info("schema up to date", zap.String("dialect", dialect))
	return nil
}

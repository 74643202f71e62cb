package migrate

import (
	"context"

	"github.com/angelmondragon/flowdesk-backend/pkg/config"
	"github.com/angelmondragon/flowdesk-backend/pkg/db"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

// ApplyOnBoot brings the ledger schema up to date when running in dev with
// FLOWDESK_AUTO_MIGRATE set. Other environments migrate through cmd/migrate.
func ApplyOnBoot(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	runner, err := NewRunner(RunnerParams{DB: client.SQL(), Logger: logg})
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "applied", applied), "migration.boot.completed")
	}
	return nil
}

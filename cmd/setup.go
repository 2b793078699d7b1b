package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/vidpub/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase writes a config file from the template when none exists, then initializes
// the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" && !shared.FileExists(r.configPath) {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", r.configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	_, db, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := shared.MigrationStatuses(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		r.writePlain("%03d %-30s %s\n", s.Version, s.Name, state)
	}
	return nil
}

package main

import (
	"context"
	"fmt"

	cli "gopkg.in/urfave/cli.v1"

	migration "github.com/venicegeo/bf-scene-catalog/migrations"
	"github.com/venicegeo/bf-scene-catalog/util"
)

func migrateDatabaseAction(*cli.Context) error {
	logContext := &util.BasicLogContext{}
	cfg, err := loadConfigFunc()
	if err != nil {
		return exitError(logContext, "Could not load configuration", err)
	}
	store, err := getDbConnectionFunc(logContext, cfg)
	if err != nil {
		return exitError(logContext, "Could not open database connection", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err = store.Migrate(ctx); err != nil {
		return exitError(logContext, "Migration failed", err)
	}
	current, err := migration.Version(ctx, store.DB().DB, store.Dialect())
	if err != nil {
		return exitError(logContext, "Could not read schema version", err)
	}
	util.LogInfo(logContext, fmt.Sprintf("Database schema is at version %d", current))
	return nil
}

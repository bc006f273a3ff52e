package main

import (
	"context"
	"fmt"

	"github.com/venicegeo/bf-scene-catalog/catalog"
	"github.com/venicegeo/bf-scene-catalog/util"
)

// getDbConnection opens the catalog named by the configuration.
func getDbConnection(ctx util.LogContext, cfg *util.Config) (*catalog.Store, error) {
	dsn, err := cfg.GetDatabaseURL(ctx)
	if err != nil {
		return nil, err
	}
	util.LogInfo(ctx, fmt.Sprintf("Creating database connection at: `%s`", redact(dsn)))
	return catalog.Open(context.Background(), dsn)
}

var getDbConnectionFunc = getDbConnection

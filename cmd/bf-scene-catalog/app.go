package main

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/venicegeo/bf-scene-catalog/catalog"
	"github.com/venicegeo/bf-scene-catalog/derived"
	"github.com/venicegeo/bf-scene-catalog/download"
	"github.com/venicegeo/bf-scene-catalog/revisit"
	"github.com/venicegeo/bf-scene-catalog/satellite"
	"github.com/venicegeo/bf-scene-catalog/util"
	cli "gopkg.in/urfave/cli.v1"
)

// application holds the components every command is built from.
type application struct {
	logContext   *util.BasicLogContext
	logger       *slog.Logger
	cfg          *util.Config
	store        *catalog.Store
	satellites   *satellite.Table
	scheduler    *revisit.Scheduler
	orchestrator *download.Orchestrator
	pipeline     *derived.Pipeline
}

var loadConfigFunc = util.LoadConfig

func newApplication() (*application, error) {
	logContext := &util.BasicLogContext{}
	cfg, err := loadConfigFunc()
	if err != nil {
		return nil, err
	}
	logContext.LogDir = cfg.LogDir
	logger := util.Logger(logContext)

	satellites := satellite.NewTable(cfg.RevisitCycleDays, satellite.DefaultFamilies()...)
	if cfg.SatelliteRulesFile != "" {
		if satellites, err = satellite.Load(cfg.SatelliteRulesFile, cfg.RevisitCycleDays); err != nil {
			return nil, util.LogSimpleErr(logContext, "Failed to load satellite rules", err)
		}
	}

	store, err := getDbConnectionFunc(logContext, cfg)
	if err != nil {
		return nil, util.LogSimpleErr(logContext, "Could not open database connection", err)
	}

	scheduler := &revisit.Scheduler{
		Catalog:          store,
		Satellites:       satellites,
		DefaultSatellite: cfg.DefaultSatellite,
		DefaultStation:   cfg.DefaultStationSuffix,
	}

	fetcher, err := newFetcher(logContext, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	orchestrator := &download.Orchestrator{
		Catalog:     store,
		Scheduler:   scheduler,
		Fetcher:     fetcher,
		QualityBand: cfg.QualityBand,
		Logger:      logger.With("component", "download"),
	}
	if host := cfg.GetLandsatHost(logContext); host != "" {
		orchestrator.Metadata = download.MTLMetadata{BaseURL: host}
	}

	pipeline := &derived.Pipeline{
		Catalog:       store,
		Satellites:    satellites,
		Tools:         derived.ExecRunner{},
		TilerCommand:  cfg.TilerCommand,
		HeaderCommand: cfg.HeaderCommand,
		DownloadDir:   cfg.DownloadDir,
		BaseMount:     cfg.TMSBaseMount,
		BaseURL:       cfg.TMSBaseURL,
		Lease:         cfg.TMSClaimLease,
		Logger:        logger.With("component", "derived"),
	}

	return &application{
		logContext:   logContext,
		logger:       logger,
		cfg:          cfg,
		store:        store,
		satellites:   satellites,
		scheduler:    scheduler,
		orchestrator: orchestrator,
		pipeline:     pipeline,
	}, nil
}

func (app *application) Close() error {
	return app.store.Close()
}

// newFetcher prefers object storage and falls back to LANDSAT_HOST.
func newFetcher(logContext util.LogContext, cfg *util.Config) (download.Fetcher, error) {
	if cfg.UseMinio() {
		util.LogInfo(logContext, fmt.Sprintf("Fetching bands from bucket %s at %s", cfg.MinioBucket, cfg.MinioEndpoint))
		return download.NewMinioFetcher(cfg.MinioEndpoint, cfg.MinioAccess, cfg.MinioSecret, cfg.MinioUseSSL, cfg.MinioBucket, cfg.DownloadDir)
	}
	return download.HTTPFetcher{BaseURL: cfg.GetLandsatHost(logContext), Dir: cfg.DownloadDir}, nil
}

// redact hides the password of a connection URL.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func exitError(logContext util.LogContext, message string, err error) error {
	return cli.NewExitError(util.LogSimpleErr(logContext, message, err).Error(), 1)
}

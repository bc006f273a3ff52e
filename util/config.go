// Copyright 2016, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Defaults that are not expressible as struct tags
const (
	DefaultDatabaseURL     = "file:bf-scene-catalog.db"
	MinMonitorFrequency    = time.Minute
	DefaultMonitorInterval = 24 * time.Hour
	pzPostgresService      = "pz-postgres"
)

// Config is the runtime configuration, read from the environment.
type Config struct {
	// Catalog storage. Falls back to the pz-postgres service in
	// VCAP_SERVICES, then to a local sqlite file.
	DatabaseURL  string `env:"DATABASE_URL"`
	VcapServices string `env:"VCAP_SERVICES"`

	// Revisit rules
	RevisitCycleDays     int    `env:"REVISIT_CYCLE_DAYS"     envDefault:"16"`
	DefaultSatellite     string `env:"DEFAULT_SATELLITE"      envDefault:"LC8"`
	DefaultStationSuffix string `env:"DEFAULT_STATION_SUFFIX" envDefault:"LGN00"`
	SatelliteRulesFile   string `env:"SATELLITE_RULES_FILE"`

	// Download
	QualityBand   string `env:"QUALITY_BAND" envDefault:"BQA"`
	DownloadDir   string `env:"DOWNLOAD_DIR" envDefault:"/mnt/csr/downloads"`
	LandsatHost   string `env:"LANDSAT_HOST"`
	MinioEndpoint string `env:"MINIO_ENDPOINT"`
	MinioAccess   string `env:"MINIO_ACCESS_KEY"`
	MinioSecret   string `env:"MINIO_SECRET_KEY"`
	MinioBucket   string `env:"MINIO_BUCKET"`
	MinioUseSSL   bool   `env:"MINIO_USE_SSL"`

	// Derived products
	TMSBaseMount  string        `env:"TMS_BASE_MOUNT"  envDefault:"/mnt/csr/imagens"`
	TMSBaseURL    string        `env:"TMS_BASE_URL"    envDefault:"http://localhost/imagens/tms/landsat"`
	TilerCommand  string        `env:"TILER_COMMAND"   envDefault:"make_tms.sh"`
	HeaderCommand string        `env:"HEADER_COMMAND"  envDefault:"create_hdr"`
	TMSClaimLease time.Duration `env:"TMS_CLAIM_LEASE" envDefault:"1h"`

	// Workers and monitor
	AMQPURL          string   `env:"AMQP_URL"`
	QueuePrefix      string   `env:"QUEUE_PREFIX"      envDefault:"bf-scene-catalog"`
	Workers          int      `env:"WORKERS"           envDefault:"4"`
	MonitorFrequency string   `env:"MONITOR_FREQUENCY" envDefault:"24h"`
	MonitorBands     []string `env:"MONITOR_BANDS"     envDefault:"4,5,6" envSeparator:","`

	Port   string `env:"PORT"    envDefault:"8080"`
	LogDir string `env:"LOG_DIR"`
}

// LoadConfig parses the environment into a Config.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// GetDatabaseURL returns the catalog connection string
func (c *Config) GetDatabaseURL(ctx LogContext) (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if c.VcapServices == "" {
		LogInfo(ctx, "No DB connection found in DATABASE_URL or VCAP_SERVICES, using "+DefaultDatabaseURL)
		return DefaultDatabaseURL, nil
	}

	LogInfo(ctx, "No DB connection found in DATABASE_URL, checking VCAP_SERVICES")
	services, err := ParseVcapServices([]byte(c.VcapServices))
	if err != nil {
		return "", fmt.Errorf("could not get DB connection from VCAP_SERVICES (no valid VCAP_SERVICES found): %w", err)
	}
	service := services.FindServiceByName(pzPostgresService)
	if service == nil {
		return "", fmt.Errorf("could not get DB connection from VCAP_SERVICES ('%s' service not found); available services: %v",
			pzPostgresService, services.GetServiceNames())
	}
	uri, err := service.Credentials.String("uri")
	if err != nil {
		return "", fmt.Errorf("could not get DB connection from VCAP_SERVICES (error getting URI string): %w", err)
	}
	return uri, nil
}

// GetLandsatHost returns the band source URL; empty when MinIO is used
func (c *Config) GetLandsatHost(ctx LogContext) string {
	if c.LandsatHost == "" && !c.UseMinio() {
		LogAlert(ctx, "Did not get Landsat Host URL from the environment. Downloads and scene metadata will not be available.")
	}
	return c.LandsatHost
}

// UseMinio reports whether bands come from object storage
func (c *Config) UseMinio() bool {
	return c.MinioEndpoint != "" && c.MinioBucket != ""
}

// GetMonitorFrequency returns the time between monitor checks
func (c *Config) GetMonitorFrequency(ctx LogContext) time.Duration {
	duration, _ := time.ParseDuration(c.MonitorFrequency)
	if duration < MinMonitorFrequency {
		LogAlert(ctx, fmt.Sprintf("Specified duration of %v is too small. Setting to default.", duration))
		duration = DefaultMonitorInterval
	}
	return duration
}

// GetPortStr returns the listen address
func (c *Config) GetPortStr() string {
	return ":" + c.Port
}

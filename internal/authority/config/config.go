// Package config handles configuration for the Authority, layering
// defaults, an optional JSON/YAML file, GEOUPLOAD_* environment variables
// and command-line flags, in that order.
package config

import (
	"time"

	"github.com/dmitrijs2005/geoupload/internal/common"
)

// Config holds runtime settings for the Authority.
//
// Fields:
//   - Profile: "development" or "production"; production refuses to start without keys.
//   - HTTPAddr: bind address for the public HTTP API.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects in-memory repositories.
//   - SessionSecret: HMAC secret of the session tokens minted by the account service.
//   - PrivateKey / PublicKey: Authority ES256 key pair (inline PEM or file path).
//   - WorkerPublicKey: key the worker signs processing results with.
//   - WorkerURL: handed to clients together with the upload token.
//   - UploadTokenTTL: lifetime of upload authorizations.
//   - AuthorizeRatePerMinute / AuthorizeBurst: per-user authorization limit.
type Config struct {
	Profile                string
	HTTPAddr               string
	DatabaseDSN            string
	SessionSecret          string
	PrivateKey             string
	PublicKey              string
	WorkerPublicKey        string
	WorkerURL              string
	UploadTokenTTL         time.Duration
	AuthorizeRatePerMinute int
	AuthorizeBurst         int
	LogLevel               string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.Profile = common.ProfileDevelopment
	c.HTTPAddr = ":8000"
	c.DatabaseDSN = ""
	c.SessionSecret = "secretKey"
	c.WorkerURL = "http://127.0.0.1:8001"
	c.UploadTokenTTL = 60 * time.Minute
	c.AuthorizeRatePerMinute = 10
	c.AuthorizeBurst = 5
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then the config file
// named by -c/-config, then the environment, then command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg); err != nil {
		return nil, err
	}
	parseEnv(cfg)
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

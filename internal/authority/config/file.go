package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/geoupload/internal/flagx"
	"github.com/dmitrijs2005/geoupload/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the Authority config. Only keys
// present in the file override the current values.
type FileConfig struct {
	Profile                string          `json:"profile" yaml:"profile"`
	HTTPAddr               string          `json:"http_addr" yaml:"http_addr"`
	DatabaseDSN            string          `json:"database_dsn" yaml:"database_dsn"`
	SessionSecret          string          `json:"session_secret" yaml:"session_secret"`
	PrivateKey             string          `json:"private_key" yaml:"private_key"`
	PublicKey              string          `json:"public_key" yaml:"public_key"`
	WorkerPublicKey        string          `json:"worker_public_key" yaml:"worker_public_key"`
	WorkerURL              string          `json:"worker_url" yaml:"worker_url"`
	UploadTokenTTL         *timex.Duration `json:"upload_token_ttl" yaml:"upload_token_ttl"`
	AuthorizeRatePerMinute *int            `json:"authorize_rate_per_minute" yaml:"authorize_rate_per_minute"`
	AuthorizeBurst         *int            `json:"authorize_burst" yaml:"authorize_burst"`
	LogLevel               string          `json:"log_level" yaml:"log_level"`
}

// parseFile loads the file passed with -c or -config, if any.
func parseFile(config *Config) error {
	path := flagx.ConfigFileFlag(os.Args[1:])
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &FileConfig{}
	switch flagx.FormatOf(path) {
	case flagx.FormatYAML:
		err = yaml.Unmarshal(b, c)
	default:
		err = json.Unmarshal(b, c)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.Profile, c.Profile)
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SessionSecret, c.SessionSecret)
	setString(&config.PrivateKey, c.PrivateKey)
	setString(&config.PublicKey, c.PublicKey)
	setString(&config.WorkerPublicKey, c.WorkerPublicKey)
	setString(&config.WorkerURL, c.WorkerURL)
	setString(&config.LogLevel, c.LogLevel)
	if c.UploadTokenTTL != nil {
		config.UploadTokenTTL = c.UploadTokenTTL.Duration
	}
	if c.AuthorizeRatePerMinute != nil {
		config.AuthorizeRatePerMinute = *c.AuthorizeRatePerMinute
	}
	if c.AuthorizeBurst != nil {
		config.AuthorizeBurst = *c.AuthorizeBurst
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

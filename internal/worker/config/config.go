// Package config handles configuration for the Worker. Layers apply in
// order: defaults, the -c/-config file (JSON or YAML), GEOUPLOAD_*
// environment variables, command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/geoupload/internal/common"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageMinIO = "minio"
)

// Config holds runtime settings for the Worker.
type Config struct {
	Profile   string
	HTTPAddr  string
	AdminAddr string
	LogLevel  string

	AuthorityURL       string
	AuthorityPublicKey string
	PrivateKey         string
	PublicKey          string

	WorkDir string

	StorageBackend   string
	PublicDir        string
	PicsURL          string
	StorageEndpoint  string
	StorageRegion    string
	StorageBucket    string
	StorageAccessKey string
	StorageSecretKey string
	StorageUseSSL    bool
	CDNBaseURL       string

	DetectorURL     string
	DetectorTimeout time.Duration

	AdmissionInterval time.Duration
	RequiredMemoryMB  int
	MemoryPoll        time.Duration
	MemoryTimeout     time.Duration

	NotifyTimeout time.Duration
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Profile = common.ProfileDevelopment
	c.HTTPAddr = ":8001"
	c.AdminAddr = ":9091"
	c.LogLevel = "info"

	c.AuthorityURL = "http://127.0.0.1:8000"

	c.WorkDir = "./uploads"

	c.StorageBackend = StorageLocal
	c.PublicDir = "./public"
	c.PicsURL = "http://127.0.0.1:8001/pics/"
	c.StorageRegion = "us-east-1"
	c.StorageBucket = "photos"

	c.DetectorTimeout = 60 * time.Second

	c.AdmissionInterval = 2 * time.Second
	c.RequiredMemoryMB = 500
	c.MemoryPoll = time.Second
	c.MemoryTimeout = 30 * time.Second

	c.NotifyTimeout = 30 * time.Second
}

// LoadConfig builds a Config from all layers.
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

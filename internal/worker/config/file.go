package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/flagx"
	"github.com/dmitrijs2005/geoupload/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the Worker config. Keys absent from
// the file leave the current values alone.
type FileConfig struct {
	Profile   string `json:"profile" yaml:"profile"`
	HTTPAddr  string `json:"http_addr" yaml:"http_addr"`
	AdminAddr string `json:"admin_addr" yaml:"admin_addr"`
	LogLevel  string `json:"log_level" yaml:"log_level"`

	AuthorityURL       string `json:"authority_url" yaml:"authority_url"`
	AuthorityPublicKey string `json:"authority_public_key" yaml:"authority_public_key"`
	PrivateKey         string `json:"private_key" yaml:"private_key"`
	PublicKey          string `json:"public_key" yaml:"public_key"`

	WorkDir string `json:"work_dir" yaml:"work_dir"`

	StorageBackend   string `json:"storage_backend" yaml:"storage_backend"`
	PublicDir        string `json:"public_dir" yaml:"public_dir"`
	PicsURL          string `json:"pics_url" yaml:"pics_url"`
	StorageEndpoint  string `json:"storage_endpoint" yaml:"storage_endpoint"`
	StorageRegion    string `json:"storage_region" yaml:"storage_region"`
	StorageBucket    string `json:"storage_bucket" yaml:"storage_bucket"`
	StorageAccessKey string `json:"storage_access_key" yaml:"storage_access_key"`
	StorageSecretKey string `json:"storage_secret_key" yaml:"storage_secret_key"`
	StorageUseSSL    *bool  `json:"storage_use_ssl" yaml:"storage_use_ssl"`
	CDNBaseURL       string `json:"cdn_base_url" yaml:"cdn_base_url"`

	DetectorURL     string          `json:"detector_url" yaml:"detector_url"`
	DetectorTimeout *timex.Duration `json:"detector_timeout" yaml:"detector_timeout"`

	AdmissionInterval *timex.Duration `json:"admission_interval" yaml:"admission_interval"`
	RequiredMemoryMB  *int            `json:"required_memory_mb" yaml:"required_memory_mb"`
	MemoryPoll        *timex.Duration `json:"memory_poll" yaml:"memory_poll"`
	MemoryTimeout     *timex.Duration `json:"memory_timeout" yaml:"memory_timeout"`

	NotifyTimeout *timex.Duration `json:"notify_timeout" yaml:"notify_timeout"`
}

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
	for dst, v := range map[*string]string{
		&config.Profile:            c.Profile,
		&config.HTTPAddr:           c.HTTPAddr,
		&config.AdminAddr:          c.AdminAddr,
		&config.LogLevel:           c.LogLevel,
		&config.AuthorityURL:       c.AuthorityURL,
		&config.AuthorityPublicKey: c.AuthorityPublicKey,
		&config.PrivateKey:         c.PrivateKey,
		&config.PublicKey:          c.PublicKey,
		&config.WorkDir:            c.WorkDir,
		&config.StorageBackend:     c.StorageBackend,
		&config.PublicDir:          c.PublicDir,
		&config.PicsURL:            c.PicsURL,
		&config.StorageEndpoint:    c.StorageEndpoint,
		&config.StorageRegion:      c.StorageRegion,
		&config.StorageBucket:      c.StorageBucket,
		&config.StorageAccessKey:   c.StorageAccessKey,
		&config.StorageSecretKey:   c.StorageSecretKey,
		&config.CDNBaseURL:         c.CDNBaseURL,
		&config.DetectorURL:        c.DetectorURL,
	} {
		if v != "" {
			*dst = v
		}
	}

	for dst, v := range map[*time.Duration]*timex.Duration{
		&config.DetectorTimeout:   c.DetectorTimeout,
		&config.AdmissionInterval: c.AdmissionInterval,
		&config.MemoryPoll:        c.MemoryPoll,
		&config.MemoryTimeout:     c.MemoryTimeout,
		&config.NotifyTimeout:     c.NotifyTimeout,
	} {
		if v != nil {
			*dst = v.Duration
		}
	}

	if c.StorageUseSSL != nil {
		config.StorageUseSSL = *c.StorageUseSSL
	}
	if c.RequiredMemoryMB != nil {
		config.RequiredMemoryMB = *c.RequiredMemoryMB
	}
}

package config

import (
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "GEOUPLOAD"

// parseEnv overlays GEOUPLOAD_* environment variables, e.g.
// GEOUPLOAD_AUTHORITY_URL or GEOUPLOAD_STORAGE_BACKEND.
func parseEnv(config *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for key, dst := range map[string]*string{
		"profile":              &config.Profile,
		"http_addr":            &config.HTTPAddr,
		"admin_addr":           &config.AdminAddr,
		"log_level":            &config.LogLevel,
		"authority_url":        &config.AuthorityURL,
		"authority_public_key": &config.AuthorityPublicKey,
		"private_key":          &config.PrivateKey,
		"public_key":           &config.PublicKey,
		"work_dir":             &config.WorkDir,
		"storage_backend":      &config.StorageBackend,
		"public_dir":           &config.PublicDir,
		"pics_url":             &config.PicsURL,
		"storage_endpoint":     &config.StorageEndpoint,
		"storage_region":       &config.StorageRegion,
		"storage_bucket":       &config.StorageBucket,
		"storage_access_key":   &config.StorageAccessKey,
		"storage_secret_key":   &config.StorageSecretKey,
		"cdn_base_url":         &config.CDNBaseURL,
		"detector_url":         &config.DetectorURL,
	} {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	for key, dst := range map[string]*time.Duration{
		"detector_timeout":   &config.DetectorTimeout,
		"admission_interval": &config.AdmissionInterval,
		"memory_poll":        &config.MemoryPoll,
		"memory_timeout":     &config.MemoryTimeout,
		"notify_timeout":     &config.NotifyTimeout,
	} {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	if v.IsSet("storage_use_ssl") {
		config.StorageUseSSL = v.GetBool("storage_use_ssl")
	}
	if v.IsSet("required_memory_mb") {
		config.RequiredMemoryMB = v.GetInt("required_memory_mb")
	}
}

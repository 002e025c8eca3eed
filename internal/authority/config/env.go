package config

import "github.com/spf13/viper"

// EnvPrefix is prepended to every environment key, e.g. GEOUPLOAD_HTTP_ADDR.
const EnvPrefix = "GEOUPLOAD"

// parseEnv overlays GEOUPLOAD_* environment variables. Empty variables are
// ignored.
func parseEnv(config *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	strs := map[string]*string{
		"profile":           &config.Profile,
		"http_addr":         &config.HTTPAddr,
		"database_dsn":      &config.DatabaseDSN,
		"session_secret":    &config.SessionSecret,
		"private_key":       &config.PrivateKey,
		"public_key":        &config.PublicKey,
		"worker_public_key": &config.WorkerPublicKey,
		"worker_url":        &config.WorkerURL,
		"log_level":         &config.LogLevel,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	if v.IsSet("upload_token_ttl") {
		config.UploadTokenTTL = v.GetDuration("upload_token_ttl")
	}
	if v.IsSet("authorize_rate_per_minute") {
		config.AuthorizeRatePerMinute = v.GetInt("authorize_rate_per_minute")
	}
	if v.IsSet("authorize_burst") {
		config.AuthorizeBurst = v.GetInt("authorize_burst")
	}
}

package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   PostgreSQL DSN
//	-s string   session token HMAC secret
//	-w string   worker base URL handed to clients
//	-p string   profile (development|production)
//	-t int      upload token validity, minutes
//	-l string   log level
//
// os.Args is first filtered to the flags handled here using
// flagx.FilterArgs, so -c/-config and unrelated flags do not collide.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-w", "-p", "-t", "-l"})

	fs := flag.NewFlagSet("authority", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SessionSecret, "s", config.SessionSecret, "session secret key")
	fs.StringVar(&config.WorkerURL, "w", config.WorkerURL, "worker base URL")
	fs.StringVar(&config.Profile, "p", config.Profile, "profile (development|production)")
	ttl := fs.Int("t", int(config.UploadTokenTTL.Minutes()), "upload token validity (in minutes)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.UploadTokenTTL = time.Duration(*ttl) * time.Minute
	return nil
}

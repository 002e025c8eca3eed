package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/geoupload/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8001")
//	-g string   gRPC admin (health) bind address
//	-u string   Authority base URL
//	-w string   work directory for uploads in flight
//	-b string   storage backend (local|s3|minio)
//	-m int      free memory required before anonymization, MiB
//	-p string   profile (development|production)
//	-l string   log level
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-u", "-w", "-b", "-m", "-p", "-l"})

	fs := flag.NewFlagSet("worker", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.AdminAddr, "g", config.AdminAddr, "admin gRPC address")
	fs.StringVar(&config.AuthorityURL, "u", config.AuthorityURL, "authority base URL")
	fs.StringVar(&config.WorkDir, "w", config.WorkDir, "work directory")
	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend")
	fs.IntVar(&config.RequiredMemoryMB, "m", config.RequiredMemoryMB, "required free memory (MiB)")
	fs.StringVar(&config.Profile, "p", config.Profile, "profile (development|production)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(args)
}

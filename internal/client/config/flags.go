package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-o string   owner id uploads are submitted for
//	-d string   snapshot database path
//	-s string   spool directory for restored payloads
//	-n int      max concurrent transfers
//	-r int      max retries per task
//	-i int      connectivity probe interval (seconds)
//	-u string   probe URL
//	-a string   portal gRPC address for the health probe
//	-b string   S3 bucket
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-k string   S3 access key
//	-p string   S3 secret key
//	-m int      multipart part size (MiB)
//	-w string   public base URL of uploaded objects
//	-pg string  portal PostgreSQL DSN
//	-l string   log level
//	-f string   log format
//
// The function filters os.Args with flagx.FilterArgs so that flags meant for
// other components do not break parsing.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-o", "-d", "-s", "-n", "-r", "-i", "-u", "-a", "-b", "-g", "-e", "-k", "-p", "-m", "-w", "-pg", "-l", "-f",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.OwnerID, "o", cfg.OwnerID, "owner id")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "snapshot database path")
	fs.StringVar(&cfg.SpoolDir, "s", cfg.SpoolDir, "spool directory")
	fs.IntVar(&cfg.MaxConcurrent, "n", cfg.MaxConcurrent, "max concurrent transfers")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "max retries per task")
	probeInterval := fs.Int("i", int(cfg.ProbeInterval.Seconds()), "connectivity probe interval (in seconds)")
	fs.StringVar(&cfg.ProbeURL, "u", cfg.ProbeURL, "probe URL")
	fs.StringVar(&cfg.PortalGRPCAddr, "a", cfg.PortalGRPCAddr, "portal gRPC address")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.S3AccessKey, "k", cfg.S3AccessKey, "S3 access key")
	fs.StringVar(&cfg.S3SecretKey, "p", cfg.S3SecretKey, "S3 secret key")
	partSize := fs.Int64("m", cfg.S3PartSize>>20, "multipart part size (in MiB)")
	fs.StringVar(&cfg.PublicBaseURL, "w", cfg.PublicBaseURL, "public base URL")
	fs.StringVar(&cfg.PortalDSN, "pg", cfg.PortalDSN, "portal database DSN")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (text|json)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// unit-converted flags apply only when given
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.ProbeInterval = time.Duration(*probeInterval) * time.Second
		case "m":
			cfg.S3PartSize = *partSize << 20
		}
	})
}

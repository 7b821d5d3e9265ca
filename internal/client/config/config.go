package config

import "time"

// Config holds runtime settings for the uploader.
//
// Fields:
//   - OwnerID: the user uploads are submitted for.
//   - DatabasePath / SpoolDir: local snapshot database and the directory
//     restored payloads are written to.
//   - MaxConcurrent / MaxRetries / DispatchInterval: scheduler limits.
//   - RetryDelay: wait before the first retry; it doubles per attempt.
//   - SucceededGrace / FailedRetention: how long finished tasks stay visible.
//   - ProbeInterval / ProbeURL / PortalGRPCAddr: connectivity probing.
//   - SnapshotMaxBytes: ceiling for one persisted snapshot.
//   - S3*: object storage settings; PublicBaseURL, when set, is the prefix
//     of access references instead of s3://bucket/key.
//   - PortalDSN: PostgreSQL DSN of the portal records. Empty keeps records
//     in memory.
//   - LogLevel / LogFormat: "debug|info|warn|error" and "text|json".
type Config struct {
	OwnerID          string
	DatabasePath     string
	SpoolDir         string
	MaxConcurrent    int
	MaxRetries       int
	DispatchInterval time.Duration
	RetryDelay       time.Duration
	SucceededGrace   time.Duration
	FailedRetention  time.Duration
	ProbeInterval    time.Duration
	ProbeURL         string
	PortalGRPCAddr   string
	SnapshotMaxBytes int64
	S3Region         string
	S3Bucket         string
	S3BaseEndpoint   string
	S3AccessKey      string
	S3SecretKey      string
	S3PartSize       int64
	PublicBaseURL    string
	PortalDSN        string
	LogLevel         string
	LogFormat        string
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.OwnerID = "local"
	c.DatabasePath = "uploader.db"
	c.SpoolDir = "spool"
	c.MaxConcurrent = 3
	c.MaxRetries = 3
	c.DispatchInterval = time.Second
	c.RetryDelay = 2 * time.Second
	c.SucceededGrace = 30 * time.Second
	c.FailedRetention = time.Hour
	c.ProbeInterval = 2 * time.Second
	c.ProbeURL = "http://127.0.0.1:9000/minio/health/live"
	c.PortalGRPCAddr = ""
	c.SnapshotMaxBytes = 50 << 20
	c.S3Region = "us-east-1"
	c.S3Bucket = "uploads"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.S3AccessKey = ""
	c.S3SecretKey = ""
	c.S3PartSize = 8 << 20
	c.PublicBaseURL = ""
	c.PortalDSN = ""
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig builds a Config from defaults, then an optional JSON or YAML
// file, then command-line flags. Later sources win.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/docuploader/internal/flagx"
	"github.com/dmitrijs2005/docuploader/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the DTO for JSON and YAML config files. Intervals use
// timex.Duration so both "3s" and integer nanoseconds are accepted.
type FileConfig struct {
	OwnerID          string         `json:"owner_id" yaml:"owner_id"`
	DatabasePath     string         `json:"database_path" yaml:"database_path"`
	SpoolDir         string         `json:"spool_dir" yaml:"spool_dir"`
	MaxConcurrent    int            `json:"max_concurrent" yaml:"max_concurrent"`
	MaxRetries       *int           `json:"max_retries" yaml:"max_retries"`
	DispatchInterval timex.Duration `json:"dispatch_interval" yaml:"dispatch_interval"`
	RetryDelay       timex.Duration `json:"retry_delay" yaml:"retry_delay"`
	SucceededGrace   timex.Duration `json:"succeeded_grace" yaml:"succeeded_grace"`
	FailedRetention  timex.Duration `json:"failed_retention" yaml:"failed_retention"`
	ProbeInterval    timex.Duration `json:"probe_interval" yaml:"probe_interval"`
	ProbeURL         string         `json:"probe_url" yaml:"probe_url"`
	PortalGRPCAddr   string         `json:"portal_grpc_addr" yaml:"portal_grpc_addr"`
	SnapshotMaxBytes int64          `json:"snapshot_max_bytes" yaml:"snapshot_max_bytes"`
	S3Region         string         `json:"s3_region" yaml:"s3_region"`
	S3Bucket         string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3AccessKey      string         `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey      string         `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3PartSize       int64          `json:"s3_part_size" yaml:"s3_part_size"`
	PublicBaseURL    string         `json:"public_base_url" yaml:"public_base_url"`
	PortalDSN        string         `json:"portal_dsn" yaml:"portal_dsn"`
	LogLevel         string         `json:"log_level" yaml:"log_level"`
	LogFormat        string         `json:"log_format" yaml:"log_format"`
}

// parseFile overlays cfg with the file named by -c / -config. Nothing
// happens when no file is given. Read or decode errors panic, as with
// flag parsing.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFromOSArgs()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	str(&cfg.OwnerID, fc.OwnerID)
	str(&cfg.DatabasePath, fc.DatabasePath)
	str(&cfg.SpoolDir, fc.SpoolDir)
	if fc.MaxConcurrent > 0 {
		cfg.MaxConcurrent = fc.MaxConcurrent
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	dur(&cfg.DispatchInterval, fc.DispatchInterval)
	dur(&cfg.RetryDelay, fc.RetryDelay)
	dur(&cfg.SucceededGrace, fc.SucceededGrace)
	dur(&cfg.FailedRetention, fc.FailedRetention)
	dur(&cfg.ProbeInterval, fc.ProbeInterval)
	str(&cfg.ProbeURL, fc.ProbeURL)
	str(&cfg.PortalGRPCAddr, fc.PortalGRPCAddr)
	if fc.SnapshotMaxBytes > 0 {
		cfg.SnapshotMaxBytes = fc.SnapshotMaxBytes
	}
	str(&cfg.S3Region, fc.S3Region)
	str(&cfg.S3Bucket, fc.S3Bucket)
	str(&cfg.S3BaseEndpoint, fc.S3BaseEndpoint)
	str(&cfg.S3AccessKey, fc.S3AccessKey)
	str(&cfg.S3SecretKey, fc.S3SecretKey)
	if fc.S3PartSize > 0 {
		cfg.S3PartSize = fc.S3PartSize
	}
	str(&cfg.PublicBaseURL, fc.PublicBaseURL)
	str(&cfg.PortalDSN, fc.PortalDSN)
	str(&cfg.LogLevel, fc.LogLevel)
	str(&cfg.LogFormat, fc.LogFormat)
}

func str(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func dur(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}

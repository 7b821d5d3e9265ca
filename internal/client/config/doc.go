// Package config loads runtime configuration for the uploader.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are read as YAML, anything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # File schema
//
// Intervals use timex.Duration, so they can be strings like "3s" or integer
// nanoseconds. Keys that are absent keep their previous value:
//
//	{
//	  "database_path": "uploader.db",
//	  "max_concurrent": 3,
//	  "dispatch_interval": "1s",
//	  "probe_url": "http://127.0.0.1:9000/minio/health/live",
//	  "s3_bucket": "uploads"
//	}
//
// Note: This package does not read environment variables; the AWS SDK still
// falls back to its own credential chain when no S3 keys are configured.
package config

// Package warehouse archives media envelopes as Parquet files on S3.
package warehouse

import (
	"time"
)

// Config holds archive configuration.
type Config struct {
	// S3 configuration
	S3 S3Config `envPrefix:"S3_"`

	// Batching configuration
	Batch BatchConfig `envPrefix:"BATCH_"`

	// Parquet configuration
	Parquet ParquetConfig `envPrefix:"PARQUET_"`

	// Compaction configuration
	Compaction CompactionConfig `envPrefix:"COMPACTION_"`
}

// S3Config holds S3/MinIO configuration.
type S3Config struct {
	// Endpoint is the S3 endpoint URL (e.g., "http://localhost:9000" for MinIO)
	Endpoint string `env:"ENDPOINT" envDefault:"http://localhost:9000"`

	// Region is the AWS region
	Region string `env:"REGION" envDefault:"us-east-1"`

	// Bucket is the S3 bucket name
	Bucket string `env:"BUCKET" envDefault:"causality-media"`

	// AccessKeyID is the AWS access key ID
	AccessKeyID string `env:"ACCESS_KEY_ID" envDefault:"minioadmin"`

	// SecretAccessKey is the AWS secret access key
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" envDefault:"minioadmin"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `env:"USE_PATH_STYLE" envDefault:"true"`

	// Prefix is the key prefix for all objects
	Prefix string `env:"PREFIX" envDefault:"media"`
}

// BatchConfig holds row buffering configuration.
type BatchConfig struct {
	// MaxEvents is the number of buffered rows that triggers a flush
	MaxEvents int `env:"MAX_EVENTS" envDefault:"10000"`

	// FlushInterval is the maximum time rows stay buffered
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5m"`

	// MaxPending caps buffered rows while uploads fail; the oldest rows are
	// dropped beyond it
	MaxPending int `env:"MAX_PENDING" envDefault:"100000"`
}

// ParquetConfig holds Parquet writer configuration.
type ParquetConfig struct {
	// Compression is the compression codec (snappy, gzip, zstd, none)
	Compression string `env:"COMPRESSION" envDefault:"snappy"`
}

// CompactionConfig holds configuration for merging small archive files.
type CompactionConfig struct {
	// Enabled controls whether scheduled compaction runs.
	Enabled bool `env:"ENABLED" envDefault:"false"`

	// Schedule is the interval between compaction runs.
	Schedule time.Duration `env:"SCHEDULE" envDefault:"1h"`

	// TargetSize is the target size of a compacted file in bytes (128 MB).
	TargetSize int64 `env:"TARGET_SIZE" envDefault:"134217728"`

	// MinFiles is the number of small files a partition needs before it is
	// compacted.
	MinFiles int `env:"MIN_FILES" envDefault:"2"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		S3: S3Config{
			Endpoint:     "http://localhost:9000",
			Region:       "us-east-1",
			Bucket:       "causality-media",
			UsePathStyle: true,
			Prefix:       "media",
		},
		Batch: BatchConfig{
			MaxEvents:     10000,
			FlushInterval: 5 * time.Minute,
			MaxPending:    100000,
		},
		Parquet: ParquetConfig{Compression: "snappy"},
		Compaction: CompactionConfig{
			Schedule:   time.Hour,
			TargetSize: DefaultTargetSize,
			MinFiles:   DefaultMinFiles,
		},
	}
}

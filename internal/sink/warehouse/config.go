package warehouse

import "time"

// Config holds warehouse sink configuration. Grounded on
// internal/warehouse/config.go.
type Config struct {
	S3      S3Config      `envPrefix:"S3_"`
	Parquet ParquetConfig `envPrefix:"PARQUET_"`
}

// S3Config holds S3/MinIO configuration.
type S3Config struct {
	Endpoint        string `env:"ENDPOINT" envDefault:"http://localhost:9000"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Bucket          string `env:"BUCKET" envDefault:"loghub-events"`
	AccessKeyID     string `env:"ACCESS_KEY_ID" envDefault:"minioadmin"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" envDefault:"minioadmin"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE" envDefault:"true"`
	Prefix          string `env:"PREFIX" envDefault:"events"`
}

// ParquetConfig holds Parquet writer configuration.
type ParquetConfig struct {
	Compression  string `env:"COMPRESSION" envDefault:"snappy"`
	RowGroupSize int64  `env:"ROW_GROUP_SIZE" envDefault:"10000"`
}

// nowFunc is the partition clock, overridable in tests.
var nowFunc = time.Now

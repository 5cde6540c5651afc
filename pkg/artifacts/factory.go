package artifacts

import (
	"context"
	"fmt"
)

// Backend names.
const (
	BackendFile = "file"
	BackendS3   = "s3"
	BackendGCS  = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string
	Dir      string
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewStore builds the configured backend.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		dir := cfg.Dir
		if dir == "" {
			dir = "data/artifacts"
		}
		return NewFileStore(dir)
	case BackendS3:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{Bucket: cfg.Bucket, Region: region, Endpoint: cfg.Endpoint, Prefix: cfg.Prefix})
	case BackendGCS:
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported artifact backend: %s", cfg.Backend)
	}
}

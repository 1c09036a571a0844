package blob

import (
	"context"
	"errors"
	"fmt"
)

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver `yaml:"driver"`
	// FSRoot is the directory root when Driver is fs (default ./data).
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// Open returns the Store named by cfg.Driver (fs when empty).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("blob driver %s: %w", driver, errors.ErrUnsupported)
	}
}

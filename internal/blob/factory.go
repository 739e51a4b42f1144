package blob

import (
	"context"
	"fmt"
	"os"

	"crosswalk/internal/blob/core"
	"crosswalk/internal/infra/blob/fs"
	memorystore "crosswalk/internal/infra/blob/memory"
	infraS3 "crosswalk/internal/infra/blob/s3"
)

// Environment variables read by Open.
const (
	EnvDriver = "CROSSWALK_BLOB_DRIVER"
	EnvFSRoot = "CROSSWALK_BLOB_FS_ROOT"
)

// S3Config is the explicit S3 configuration.
type S3Config = infraS3.Config

// Open selects a Store implementation using environment variables.
//
//	CROSSWALK_BLOB_DRIVER: fs|s3|memory (default fs)
//	CROSSWALK_BLOB_FS_ROOT: directory root when driver=fs (default ./data)
//	CROSSWALK_BLOB_S3_*: see infra/blob/s3
func Open(ctx context.Context) (Store, error) {
	return OpenDriver(ctx, Driver(os.Getenv(EnvDriver)), os.Getenv(EnvFSRoot))
}

// OpenDriver builds the store for driver. An empty driver means fs.
func OpenDriver(ctx context.Context, driver Driver, fsRoot string) (Store, error) {
	switch driver {
	case "", core.DriverFilesystem:
		return NewFilesystem(fsRoot)
	case core.DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case core.DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed Store from cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 transport for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

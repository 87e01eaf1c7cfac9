// Package blob re-exports the blob abstractions and opens the configured
// backend.
package blob

import (
	"context"
	"fmt"

	"enkfcore/internal/blob/core"
	"enkfcore/internal/config"
	"enkfcore/internal/infra/blob/badger"
	"enkfcore/internal/infra/blob/fs"
	"enkfcore/internal/infra/blob/memory"
	"enkfcore/internal/infra/blob/s3"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
	DriverBadger     = core.DriverBadger
)

var (
	ErrNotFound = core.ErrNotFound
	ErrExists   = core.ErrExists
)

// NewMemory returns a volatile in-process store.
func NewMemory() Store { return memory.New() }

// Open constructs the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	var (
		st  Store
		err error
	)
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		st, err = fs.New(cfg.FSRoot)
	case DriverMemory:
		st = memory.New()
	case DriverBadger:
		st, err = badger.Open(cfg.BadgerPath)
	case DriverS3:
		st, err = s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

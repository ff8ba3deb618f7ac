// Package store persists the crawled funding history, one blob per
// (exchange, pair). The checkpoint logic is backend-agnostic: local files
// for a plain run, S3 when a shared data directory is configured.
package store

import (
	"context"
	"errors"
)

// ErrNotExist reports that no blob is stored under the requested key.
// Backends translate their native not-found signal into it so the
// checkpoint can treat a first crawl and an existing one uniformly.
var ErrNotExist = errors.New("blob does not exist")

// Blob is a flat key/value surface over the persisted crawl state. Put must
// replace the previous content atomically: a reader never observes a
// partially written blob.
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

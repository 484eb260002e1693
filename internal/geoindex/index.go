// Package geoindex provides place index backends: an embedded Bleve index, an
// Elasticsearch index, and an in-memory index for development.
package geoindex

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/config"
	"github.com/hyperjump/shopassist/internal/places"
)

// Backend is a place index that can also report its size and be closed.
type Backend interface {
	places.Index
	// Count returns the number of documents in the index.
	Count(ctx context.Context) (uint64, error)
	Close() error
}

// BackendType names an index implementation.
type BackendType string

const (
	// BackendBleve stores the index on local disk.
	BackendBleve BackendType = "bleve"
	// BackendElastic uses a remote Elasticsearch cluster.
	BackendElastic BackendType = "elastic"
	// BackendMemory keeps documents in process. Good for development and tests.
	BackendMemory BackendType = "memory"
)

// New creates the backend selected by cfg.Index.Backend.
// With the memory backend, places.degraded_geo disables geo queries so the
// degraded environment can be reproduced locally.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	switch BackendType(cfg.Index.Backend) {
	case BackendBleve, "":
		return NewBleveIndex(cfg.Storage.BleveIndexPath)
	case BackendElastic:
		return NewElasticIndex(ctx, cfg.Index.Elastic.URL, cfg.Index.Elastic.Index, WithElasticLogger(logger))
	case BackendMemory:
		return NewMemoryIndex(!cfg.Places.DegradedGeo), nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s (supported: bleve, elastic, memory)", cfg.Index.Backend)
	}
}

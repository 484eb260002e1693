package places

import (
	"context"
	"fmt"

	"github.com/hyperjump/shopassist/internal/models"
)

// PlaceSource lists the places the index is rebuilt from.
type PlaceSource interface {
	ListPlaces(ctx context.Context) ([]*models.Place, error)
}

// Maintainer rebuilds the index from the place source.
type Maintainer struct {
	engine *Engine
	source PlaceSource
}

// NewMaintainer returns a Maintainer for engine and source.
func NewMaintainer(engine *Engine, source PlaceSource) *Maintainer {
	return &Maintainer{engine: engine, source: source}
}

// RebuildFromStore loads every place and rebuilds the index with them.
func (m *Maintainer) RebuildFromStore(ctx context.Context) error {
	list, err := m.source.ListPlaces(ctx)
	if err != nil {
		return NewError(Transient, "load places", fmt.Errorf("failed to list places: %w", err))
	}
	return m.engine.Rebuild(ctx, list)
}

package geoindex

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperjump/shopassist/internal/geo"
	"github.com/hyperjump/shopassist/internal/places"
)

// MemoryIndex keeps documents in a map and answers queries by brute force.
// When geo support is disabled it behaves like an index whose geo features are
// inoperative: geo queries match nothing and hits carry zero coordinates.
type MemoryIndex struct {
	mu         sync.RWMutex
	docs       map[string]places.Document
	geoCapable bool
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(geoCapable bool) *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]places.Document), geoCapable: geoCapable}
}

// Put stores doc, replacing any document with the same id.
func (m *MemoryIndex) Put(ctx context.Context, doc places.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

// IDs returns up to limit ids in lexical order.
func (m *MemoryIndex) IDs(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Delete removes the given ids. Unknown ids are ignored.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

type scoredDoc struct {
	doc    places.Document
	meters float64
}

// Search answers q by scanning every document.
func (m *MemoryIndex) Search(ctx context.Context, q places.Query) ([]places.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matched := make([]scoredDoc, 0)
	for _, d := range m.docs {
		switch {
		case q.MarkerOnly:
			if d.Marker {
				matched = append(matched, scoredDoc{doc: d})
			}
		case m.geoCapable:
			meters := geo.HaversineKm(d.Location.Latitude, d.Location.Longitude, q.Origin.Latitude, q.Origin.Longitude) * 1000
			if meters < q.MaxDistanceMeters {
				matched = append(matched, scoredDoc{doc: d, meters: meters})
			}
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].meters != matched[j].meters {
			return matched[i].meters < matched[j].meters
		}
		return matched[i].doc.ID < matched[j].doc.ID
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	hits := make([]places.Hit, len(matched))
	for i, s := range matched {
		hits[i] = places.Hit{ID: s.doc.ID, Name: s.doc.Name, Address: s.doc.Address}
		if m.geoCapable {
			hits[i].Location = s.doc.Location
		}
	}
	return hits, nil
}

// Count returns the number of stored documents.
func (m *MemoryIndex) Count(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.docs)), nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

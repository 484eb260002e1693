// Package places implements proximity search over an index of store locations
// and the wholesale rebuild of that index from storage.
package places

import (
	"context"

	"github.com/hyperjump/shopassist/internal/geo"
)

// Document field names shared by all index backends.
const (
	FieldID       = "id"
	FieldName     = "name"
	FieldAddress  = "address"
	FieldLocation = "place_location"
	FieldMarker   = "value"
	// FieldLatitude and FieldLongitude are stored copies of the location used to
	// read coordinates back from hits.
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
)

// MarkerValue is the constant stored in FieldMarker for degraded environments.
const MarkerValue = 1.0

// Document is the searchable projection of a place.
type Document struct {
	ID       string
	Name     string
	Address  string
	Location geo.Point
	// Marker adds FieldMarker = MarkerValue so documents can be found without geo support.
	Marker bool
}

// Fields returns the document as a flat field map in the layout every backend indexes.
func (d Document) Fields() map[string]interface{} {
	m := map[string]interface{}{
		FieldID:      d.ID,
		FieldName:    d.Name,
		FieldAddress: d.Address,
		FieldLocation: map[string]interface{}{
			"lat": d.Location.Latitude,
			"lon": d.Location.Longitude,
		},
		FieldLatitude:  d.Location.Latitude,
		FieldLongitude: d.Location.Longitude,
	}
	if d.Marker {
		m[FieldMarker] = MarkerValue
	}
	return m
}

// Query describes one index search.
type Query struct {
	// Origin is the point distances are measured from.
	Origin geo.Point
	// MaxDistanceMeters keeps only documents strictly closer than this.
	MaxDistanceMeters float64
	// DefaultDistanceMeters is the sort value for documents without a location.
	DefaultDistanceMeters float64
	// Limit caps the number of hits returned by the backend.
	Limit int
	// MarkerOnly ignores Origin and distance and selects documents whose marker is > 0.
	MarkerOnly bool
}

// NearbyQuery builds the geo-distance query for origin and radius.
func NearbyQuery(origin geo.Point, maxDistanceMeters float64, limit int) Query {
	return Query{
		Origin:                origin,
		MaxDistanceMeters:     maxDistanceMeters,
		DefaultDistanceMeters: maxDistanceMeters + 1,
		Limit:                 limit,
	}
}

// MarkerQuery builds the unconditional fallback query.
func MarkerQuery(limit int) Query {
	return Query{MarkerOnly: true, Limit: limit}
}

// Hit is a document returned by a search, in backend order.
type Hit struct {
	ID       string
	Name     string
	Address  string
	Location geo.Point
}

// Index is the search index that stores place documents.
type Index interface {
	// Put inserts or replaces doc.
	Put(ctx context.Context, doc Document) error
	// IDs returns up to limit document ids currently in the index.
	IDs(ctx context.Context, limit int) ([]string, error)
	// Delete removes the documents with the given ids.
	Delete(ctx context.Context, ids []string) error
	// Search runs q and returns hits ordered by the backend.
	Search(ctx context.Context, q Query) ([]Hit, error)
}

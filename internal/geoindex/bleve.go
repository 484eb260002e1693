package geoindex

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	bgeo "github.com/blevesearch/bleve/v2/geo"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/shopassist/internal/geo"
	"github.com/hyperjump/shopassist/internal/places"
)

// BleveIndex implements Backend using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory and rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, placeMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewBleveMemIndex creates a Bleve index that lives only in memory.
func NewBleveMemIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(placeMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func placeMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(places.FieldName, textFieldMapping)
	docMapping.AddFieldMappingsAt(places.FieldAddress, textFieldMapping)
	docMapping.AddFieldMappingsAt(places.FieldID, bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt(places.FieldLocation, bleve.NewGeoPointFieldMapping())

	numeric := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt(places.FieldLatitude, numeric)
	docMapping.AddFieldMappingsAt(places.FieldLongitude, numeric)
	docMapping.AddFieldMappingsAt(places.FieldMarker, numeric)

	im.AddDocumentMapping("place", docMapping)
	im.DefaultType = "place"
	im.DefaultMapping = docMapping
	return im
}

// Put indexes doc under its id.
func (b *BleveIndex) Put(ctx context.Context, doc places.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Index(doc.ID, doc.Fields()); err != nil {
		return fmt.Errorf("Bleve index failed: %w", err)
	}
	return nil
}

// IDs returns up to limit document ids.
func (b *BleveIndex) IDs(ctx context.Context, limit int) ([]string, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve id listing failed: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Delete removes the given documents in one batch.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch delete failed: %w", err)
	}
	return nil
}

// Search runs a geo-distance query sorted nearest first, or the marker query.
func (b *BleveIndex) Search(ctx context.Context, q places.Query) ([]places.Hit, error) {
	req, err := b.searchRequest(q)
	if err != nil {
		return nil, places.NewError(places.Execution, "build Bleve query", err)
	}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]places.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := places.Hit{
			ID:      stringField(h.Fields, places.FieldID, h.ID),
			Name:    stringField(h.Fields, places.FieldName, ""),
			Address: stringField(h.Fields, places.FieldAddress, ""),
			Location: geo.Point{
				Latitude:  numberField(h.Fields, places.FieldLatitude),
				Longitude: numberField(h.Fields, places.FieldLongitude),
			},
		}
		// The geo filter is inclusive at the radius; keep only strictly closer places.
		if !q.MarkerOnly && b.distanceMeters(hit.Location, q.Origin) >= q.MaxDistanceMeters {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (b *BleveIndex) searchRequest(q places.Query) (*bleve.SearchRequest, error) {
	var query blevequery.Query
	if q.MarkerOnly {
		zero := 0.0
		inclusive := false
		nq := bleve.NewNumericRangeInclusiveQuery(&zero, nil, &inclusive, nil)
		nq.SetField(places.FieldMarker)
		query = nq
	} else {
		gq := bleve.NewGeoDistanceQuery(q.Origin.Longitude, q.Origin.Latitude, fmt.Sprintf("%fm", q.MaxDistanceMeters))
		gq.SetField(places.FieldLocation)
		query = gq
	}

	req := bleve.NewSearchRequest(query)
	if q.Limit > 0 {
		req.Size = q.Limit
	}
	req.Fields = []string{places.FieldID, places.FieldName, places.FieldAddress, places.FieldLatitude, places.FieldLongitude}
	if !q.MarkerOnly {
		// Documents without a location sort after every located one.
		byDistance, err := search.NewSortGeoDistance(places.FieldLocation, "m", q.Origin.Longitude, q.Origin.Latitude, false)
		if err != nil {
			return nil, err
		}
		req.SortByCustom(search.SortOrder{byDistance})
	}
	return req, nil
}

func (b *BleveIndex) distanceMeters(p, origin geo.Point) float64 {
	return bgeo.Haversin(p.Longitude, p.Latitude, origin.Longitude, origin.Latitude) * 1000
}

// Count returns the total number of documents in the index.
func (b *BleveIndex) Count(ctx context.Context) (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func stringField(fields map[string]interface{}, name, fallback string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return fallback
}

func numberField(fields map[string]interface{}, name string) float64 {
	if v, ok := fields[name].(float64); ok {
		return v
	}
	return 0
}

package geoindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/olivere/elastic/v7"
	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/geo"
	"github.com/hyperjump/shopassist/internal/places"
)

const placeIndexMapping = `{
	"mappings": {
		"properties": {
			"id":             {"type": "keyword"},
			"name":           {"type": "text"},
			"address":        {"type": "text"},
			"place_location": {"type": "geo_point"},
			"latitude":       {"type": "double"},
			"longitude":      {"type": "double"},
			"value":          {"type": "double"}
		}
	}
}`

// ElasticIndex implements Backend on an Elasticsearch index.
type ElasticIndex struct {
	client *elastic.Client
	index  string
	logger *zap.Logger
}

// ElasticOption configures an ElasticIndex.
type ElasticOption func(*ElasticIndex)

// WithElasticLogger sets a logger for index creation and bulk failures.
func WithElasticLogger(l *zap.Logger) ElasticOption {
	return func(e *ElasticIndex) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewElasticIndex connects to url and creates the index with the place mapping when missing.
func NewElasticIndex(ctx context.Context, url, index string, opts ...ElasticOption) (*ElasticIndex, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(url),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	e := &ElasticIndex{client: client, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ElasticIndex) ensureIndex(ctx context.Context) error {
	exists, err := e.client.IndexExists(e.index).Do(ctx)
	if err != nil {
		return classifyElastic("check index", err)
	}
	if exists {
		return nil
	}
	if _, err := e.client.CreateIndex(e.index).BodyString(placeIndexMapping).Do(ctx); err != nil {
		return classifyElastic("create index", err)
	}
	e.logger.Info("elasticsearch index created", zap.String("index", e.index))
	return nil
}

// Put indexes doc under its id.
func (e *ElasticIndex) Put(ctx context.Context, doc places.Document) error {
	_, err := e.client.Index().
		Index(e.index).
		Id(doc.ID).
		BodyJson(doc.Fields()).
		Do(ctx)
	return classifyElastic("index document", err)
}

// IDs returns up to limit document ids.
func (e *ElasticIndex) IDs(ctx context.Context, limit int) ([]string, error) {
	res, err := e.client.Search(e.index).
		Query(elastic.NewMatchAllQuery()).
		FetchSource(false).
		Size(limit).
		Do(ctx)
	if err != nil {
		return nil, classifyElastic("list ids", err)
	}
	ids := make([]string, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		ids = append(ids, hit.Id)
	}
	return ids, nil
}

// Delete removes ids in one bulk request and waits for the deletion to be visible.
func (e *ElasticIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	bulk := e.client.Bulk().Index(e.index).Refresh("wait_for")
	for _, id := range ids {
		bulk.Add(elastic.NewBulkDeleteRequest().Id(id))
	}
	res, err := bulk.Do(ctx)
	if err != nil {
		return classifyElastic("bulk delete", err)
	}
	var failed []string
	for _, item := range res.Failed() {
		if item.Status == http.StatusNotFound {
			continue
		}
		failed = append(failed, item.Id)
	}
	if len(failed) > 0 {
		e.logger.Warn("bulk delete partially failed", zap.Strings("ids", failed))
		return fmt.Errorf("bulk delete failed for %d documents", len(failed))
	}
	return nil
}

type elasticPlace struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Search runs a geo-distance filter sorted nearest first, or the marker range query.
func (e *ElasticIndex) Search(ctx context.Context, q places.Query) ([]places.Hit, error) {
	svc := e.client.Search(e.index).SearchSource(searchSource(q))
	res, err := svc.Do(ctx)
	if err != nil {
		return nil, classifyElastic("search", err)
	}

	hits := make([]places.Hit, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		var p elasticPlace
		if err := json.Unmarshal(h.Source, &p); err != nil {
			return nil, places.NewError(places.Execution, "decode hit", err)
		}
		// geo_distance is inclusive at the radius; the sort value is the distance in meters.
		if !q.MarkerOnly && len(h.Sort) > 0 {
			if meters, ok := h.Sort[0].(float64); ok && meters >= q.MaxDistanceMeters {
				continue
			}
		}
		id := p.ID
		if id == "" {
			id = h.Id
		}
		hits = append(hits, places.Hit{
			ID:       id,
			Name:     p.Name,
			Address:  p.Address,
			Location: geo.Point{Latitude: p.Latitude, Longitude: p.Longitude},
		})
	}
	return hits, nil
}

func searchSource(q places.Query) *elastic.SearchSource {
	src := elastic.NewSearchSource()
	if q.Limit > 0 {
		src = src.Size(q.Limit)
	}
	if q.MarkerOnly {
		return src.Query(elastic.NewRangeQuery(places.FieldMarker).Gt(0))
	}
	within := elastic.NewGeoDistanceQuery(places.FieldLocation).
		Point(q.Origin.Latitude, q.Origin.Longitude).
		Distance(fmt.Sprintf("%fm", q.MaxDistanceMeters))
	return src.
		Query(elastic.NewBoolQuery().Filter(within)).
		SortBy(elastic.NewGeoDistanceSort(places.FieldLocation).
			Point(q.Origin.Latitude, q.Origin.Longitude).
			Asc().
			Unit("m").
			DistanceType("arc").
			IgnoreUnmapped(true))
}

// Count returns the number of documents in the index.
func (e *ElasticIndex) Count(ctx context.Context) (uint64, error) {
	n, err := e.client.Count(e.index).Do(ctx)
	if err != nil {
		return 0, classifyElastic("count", err)
	}
	return uint64(n), nil
}

// Close stops the client.
func (e *ElasticIndex) Close() error {
	e.client.Stop()
	return nil
}

// classifyElastic maps client errors to place error kinds.
func classifyElastic(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := places.Permanent
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		elastic.IsTimeout(err),
		elastic.IsConnErr(err),
		elastic.IsStatusCode(err, http.StatusTooManyRequests),
		elastic.IsStatusCode(err, http.StatusBadGateway),
		elastic.IsStatusCode(err, http.StatusServiceUnavailable),
		elastic.IsStatusCode(err, http.StatusGatewayTimeout):
		kind = places.Transient
	case elastic.IsStatusCode(err, http.StatusBadRequest):
		kind = places.Execution
	case strings.Contains(err.Error(), "no available connection"):
		kind = places.Transient
	}
	return places.NewError(kind, "elasticsearch "+op, err)
}

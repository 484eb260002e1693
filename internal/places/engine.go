package places

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shopassist/internal/config"
	"github.com/hyperjump/shopassist/internal/geo"
	"github.com/hyperjump/shopassist/internal/metrics"
	"github.com/hyperjump/shopassist/internal/models"
)

// placeholderEpsilon is the tolerance for treating a hit's coordinates as unset.
const placeholderEpsilon = 0.0001

// EngineConfig holds engine settings.
type EngineConfig struct {
	// DegradedGeo marks an index whose geo queries do not work. Documents get the
	// marker field and empty geo searches fall back to the marker query.
	DegradedGeo bool
	// PageSize is the number of ids fetched per delete round during a rebuild.
	PageSize int
	// CallTimeout bounds every index call. Zero disables the timeout.
	CallTimeout time.Duration
	// RebuildWorkers is the number of concurrent document inserts.
	RebuildWorkers int
	// PlaceholderBaseKm is the distance given to the first hit without coordinates.
	PlaceholderBaseKm float64
	// Distance computes kilometers between two coordinates.
	Distance geo.DistanceFunc
}

// EngineConfigFrom builds an EngineConfig from application config.
func EngineConfigFrom(cfg *config.Config) (EngineConfig, error) {
	dist, err := geo.FormulaFor(cfg.Places.DistanceFormula)
	if err != nil {
		return EngineConfig{}, err
	}
	return EngineConfig{
		DegradedGeo:       cfg.Places.DegradedGeo,
		PageSize:          cfg.Index.PageSize,
		CallTimeout:       cfg.Index.CallTimeout,
		RebuildWorkers:    cfg.Index.RebuildWorkers,
		PlaceholderBaseKm: cfg.Places.PlaceholderBaseKm,
		Distance:          dist,
	}, nil
}

// Engine runs proximity searches and rebuilds the place index.
type Engine struct {
	index  Index
	cfg    EngineConfig
	logger *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine over index. Zero config values get defaults.
func NewEngine(index Index, cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.RebuildWorkers <= 0 {
		cfg.RebuildWorkers = 1
	}
	if cfg.PlaceholderBaseKm == 0 {
		cfg.PlaceholderBaseKm = 5
	}
	if cfg.Distance == nil {
		cfg.Distance = geo.DistanceKm
	}
	e := &Engine{index: index, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DegradedGeo reports whether the engine runs in degraded geo mode.
func (e *Engine) DegradedGeo() bool {
	return e.cfg.DegradedGeo
}

// BuildDocument returns the index document for a place.
func (e *Engine) BuildDocument(placeID int64, name, address string, location geo.Point) Document {
	return Document{
		ID:       strconv.FormatInt(placeID, 10),
		Name:     name,
		Address:  address,
		Location: location,
		Marker:   e.cfg.DegradedGeo,
	}
}

// Rebuild clears the index and inserts one document per place. The first insert
// failure aborts the rebuild.
func (e *Engine) Rebuild(ctx context.Context, list []*models.Place) error {
	start := time.Now()
	e.logger.Info("index rebuild started", zap.Int("places", len(list)))

	deleted, err := e.clear(ctx)
	if err != nil {
		metrics.ObserveRebuild(false, 0, time.Since(start))
		e.logger.Error("index clear failed", zap.Int("deleted", deleted), zap.Error(err))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.RebuildWorkers)
	for _, p := range list {
		if gctx.Err() != nil {
			break
		}
		doc := e.BuildDocument(p.ID, p.Name, p.Address, p.Location)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return e.put(gctx, doc)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ObserveRebuild(false, 0, time.Since(start))
		e.logger.Error("index rebuild failed", zap.Error(err), zap.Bool("transient", IsTransient(err)))
		return err
	}

	metrics.ObserveRebuild(true, len(list), time.Since(start))
	e.logger.Info("index rebuild finished",
		zap.Int("deleted", deleted),
		zap.Int("indexed", len(list)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// clear deletes every document page by page until the index reports no ids.
func (e *Engine) clear(ctx context.Context) (int, error) {
	deleted := 0
	for {
		ids, err := e.ids(ctx)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			return deleted, nil
		}
		if err := e.delete(ctx, ids); err != nil {
			return deleted, err
		}
		deleted += len(ids)
	}
}

// FindNearby returns up to maxResults places strictly within maxDistanceMeters
// of origin, nearest first.
func (e *Engine) FindNearby(ctx context.Context, origin geo.Point, maxDistanceMeters float64, maxResults int) ([]*models.PlaceResult, error) {
	start := time.Now()
	results, err := e.findNearby(ctx, origin, maxDistanceMeters, maxResults)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = KindOf(err).String()
	case len(results) == 0:
		outcome = "empty"
	}
	metrics.ObserveSearch(outcome, time.Since(start))
	return results, err
}

func (e *Engine) findNearby(ctx context.Context, origin geo.Point, maxDistanceMeters float64, maxResults int) ([]*models.PlaceResult, error) {
	const op = "find nearby places"
	if err := origin.Validate(); err != nil {
		return nil, NewError(BadRequest, op, err)
	}
	if maxResults <= 0 {
		return nil, NewError(BadRequest, op, fmt.Errorf("result count must be positive: %d", maxResults))
	}
	if maxDistanceMeters < 0 || math.IsNaN(maxDistanceMeters) {
		return nil, NewError(BadRequest, op, fmt.Errorf("distance must not be negative: %v", maxDistanceMeters))
	}

	hits, err := e.search(ctx, NearbyQuery(origin, maxDistanceMeters, maxResults))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && e.cfg.DegradedGeo {
		e.logger.Debug("geo query returned no hits, using marker fallback")
		metrics.IncSearchFallback()
		hits, err = e.search(ctx, MarkerQuery(maxResults))
		if err != nil {
			return nil, err
		}
	}

	results := make([]*models.PlaceResult, 0, min(len(hits), maxResults))
	placeholders := false
	for _, h := range hits {
		if len(results) >= maxResults {
			break
		}
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			return nil, NewError(Execution, op, fmt.Errorf("malformed place id %q: %w", h.ID, err))
		}
		r := &models.PlaceResult{
			PlaceID:  id,
			Name:     h.Name,
			Address:  h.Address,
			Location: h.Location,
		}
		if h.Location.IsZero(placeholderEpsilon) {
			r.DistanceKm = e.cfg.PlaceholderBaseKm + float64(len(results))
			placeholders = true
		} else {
			r.DistanceKm = e.distanceKm(h.Location, origin, maxDistanceMeters)
		}
		results = append(results, r)
	}
	if !placeholders {
		// Backends rank with their own earth model; keep the reported distances monotonic.
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].DistanceKm < results[j].DistanceKm
		})
	}
	return results, nil
}

// distanceKm computes the distance, falling back to the search radius when the
// computation yields a non-finite value.
func (e *Engine) distanceKm(p, origin geo.Point, maxDistanceMeters float64) float64 {
	d := e.cfg.Distance(p.Latitude, p.Longitude, origin.Latitude, origin.Longitude)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		e.logger.Warn("distance computation failed, using search radius",
			zap.Stringer("place", p), zap.Stringer("origin", origin))
		return maxDistanceMeters / 1000
	}
	return d
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) put(ctx context.Context, doc Document) error {
	cctx, cancel := e.callContext(ctx)
	defer cancel()
	return classify("put document "+doc.ID, e.index.Put(cctx, doc), Permanent)
}

func (e *Engine) ids(ctx context.Context) ([]string, error) {
	cctx, cancel := e.callContext(ctx)
	defer cancel()
	ids, err := e.index.IDs(cctx, e.cfg.PageSize)
	return ids, classify("list document ids", err, Permanent)
}

func (e *Engine) delete(ctx context.Context, ids []string) error {
	cctx, cancel := e.callContext(ctx)
	defer cancel()
	return classify("delete documents", e.index.Delete(cctx, ids), Permanent)
}

func (e *Engine) search(ctx context.Context, q Query) ([]Hit, error) {
	cctx, cancel := e.callContext(ctx)
	defer cancel()
	hits, err := e.index.Search(cctx, q)
	if err != nil {
		return nil, classify("search index", err, Execution)
	}
	return hits, nil
}

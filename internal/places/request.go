package places

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/shopassist/internal/config"
	"github.com/hyperjump/shopassist/internal/geo"
	"github.com/hyperjump/shopassist/pkg/utils"
)

// Limits bound caller-supplied search parameters.
type Limits struct {
	MaxDistanceKm     float64
	MaxResults        int
	DefaultDistanceKm float64
	DefaultCount      int
}

// DefaultLimits are used when no configuration is supplied.
var DefaultLimits = Limits{
	MaxDistanceKm:     100,
	MaxResults:        100,
	DefaultDistanceKm: 5,
	DefaultCount:      10,
}

// LimitsFrom reads search limits from the places config.
func LimitsFrom(cfg *config.Config) Limits {
	return Limits{
		MaxDistanceKm:     cfg.Places.MaxDistanceKm,
		MaxResults:        cfg.Places.MaxResults,
		DefaultDistanceKm: cfg.Places.DefaultDistanceKm,
		DefaultCount:      cfg.Places.DefaultCount,
	}
}

// NearbyRequest is a validated and clamped proximity search request.
type NearbyRequest struct {
	Origin     geo.Point `json:"origin"`
	DistanceKm float64   `json:"distanceInKm"`
	Count      int       `json:"count"`
}

// MaxDistanceMeters is the search radius in meters.
func (r NearbyRequest) MaxDistanceMeters() float64 {
	return r.DistanceKm * 1000
}

// ParseNearbyRequest validates raw request parameters. Coordinates must parse and form a
// valid pair; count must be positive and distance non-negative. Values above the limits
// are clamped. Empty distance or count use the defaults.
func ParseNearbyRequest(latitude, longitude, distanceKm, count string, limits Limits) (NearbyRequest, error) {
	const op = "parse nearby request"
	origin, err := geo.ParsePoint(latitude, longitude)
	if err != nil {
		return NearbyRequest{}, NewError(BadRequest, op, fmt.Errorf("invalid location: %w", err))
	}

	req := NearbyRequest{Origin: origin, DistanceKm: limits.DefaultDistanceKm, Count: limits.DefaultCount}
	if s := strings.TrimSpace(count); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return NearbyRequest{}, NewError(BadRequest, op, fmt.Errorf("invalid count %q", s))
		}
		req.Count = n
	}
	if s := strings.TrimSpace(distanceKm); s != "" {
		d, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(d) {
			return NearbyRequest{}, NewError(BadRequest, op, fmt.Errorf("invalid distanceInKm %q", s))
		}
		req.DistanceKm = d
	}
	return req.Clamp(limits)
}

// Clamp validates r against limits and caps count and distance.
func (r NearbyRequest) Clamp(limits Limits) (NearbyRequest, error) {
	const op = "validate nearby request"
	if err := r.Origin.Validate(); err != nil {
		return NearbyRequest{}, NewError(BadRequest, op, err)
	}
	if r.Count <= 0 {
		return NearbyRequest{}, NewError(BadRequest, op, fmt.Errorf("count must be positive: %d", r.Count))
	}
	if r.DistanceKm < 0 {
		return NearbyRequest{}, NewError(BadRequest, op, fmt.Errorf("distanceInKm must not be negative: %v", r.DistanceKm))
	}
	if limits.MaxResults > 0 {
		r.Count = utils.ClampInt(r.Count, limits.MaxResults)
	}
	if limits.MaxDistanceKm > 0 {
		r.DistanceKm = utils.ClampFloat(r.DistanceKm, limits.MaxDistanceKm)
	}
	return r, nil
}

// Package geo provides coordinate validation and great-circle distance helpers.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKm is the equatorial earth radius used for all distance computations.
const EarthRadiusKm = 6378.1

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// Validate reports whether p is a valid latitude/longitude pair.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", p.Longitude)
	}
	return nil
}

// IsZero reports whether both coordinates are within eps of zero.
func (p Point) IsZero(eps float64) bool {
	return math.Abs(p.Latitude) <= eps && math.Abs(p.Longitude) <= eps
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.Latitude, p.Longitude)
}

// ParseDegrees parses a decimal-degree string such as "37.4221".
func ParseDegrees(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	return v, nil
}

// ParsePoint parses latitude and longitude strings and validates the pair.
func ParsePoint(lat, lon string) (Point, error) {
	la, err := ParseDegrees(lat)
	if err != nil {
		return Point{}, fmt.Errorf("latitude: %w", err)
	}
	lo, err := ParseDegrees(lon)
	if err != nil {
		return Point{}, fmt.Errorf("longitude: %w", err)
	}
	p := Point{Latitude: la, Longitude: lo}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

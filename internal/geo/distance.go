package geo

import (
	"fmt"
	"math"
)

const degToRad = math.Pi / 180.0

// DistanceFunc computes the distance in kilometers between two coordinates given in degrees.
type DistanceFunc func(lat1, lon1, lat2, lon2 float64) float64

// DistanceKm returns the great-circle distance in kilometers using the spherical law of cosines.
// The cosine term is clamped to [-1, 1] so identical points yield 0 instead of NaN.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * degToRad
	rlat2 := lat2 * degToRad
	dlon := math.Abs(lon1-lon2) * degToRad

	c := math.Sin(rlat1)*math.Sin(rlat2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Cos(dlon)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return EarthRadiusKm * math.Acos(c)
}

// HaversineKm returns the great-circle distance in kilometers using the haversine formula.
// It is numerically stable for very small separations.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * degToRad
	rlat2 := lat2 * degToRad
	dlat := (lat2 - lat1) * degToRad
	dlon := (lon2 - lon1) * degToRad

	h := hav(dlat) + math.Cos(rlat1)*math.Cos(rlat2)*hav(dlon)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

func hav(angle float64) float64 {
	return (1 - math.Cos(angle)) / 2
}

// Distance between two points using the law of cosines.
func Distance(a, b Point) float64 {
	return DistanceKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// FormulaFor returns the distance function registered under name.
// Supported names: "cosines" (default) and "haversine".
func FormulaFor(name string) (DistanceFunc, error) {
	switch name {
	case "", "cosines":
		return DistanceKm, nil
	case "haversine":
		return HaversineKm, nil
	default:
		return nil, fmt.Errorf("unknown distance formula: %s (supported: cosines, haversine)", name)
	}
}

package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mountainView = Point{Latitude: 37.4221, Longitude: -122.0841}
	sanJose      = Point{Latitude: 37.3382, Longitude: -121.8863}
)

func TestDistanceKm(t *testing.T) {
	t.Run("identical points are zero", func(t *testing.T) {
		for _, p := range []Point{mountainView, sanJose, {0, 0}, {89.9999, 179.9999}} {
			d := DistanceKm(p.Latitude, p.Longitude, p.Latitude, p.Longitude)
			assert.False(t, math.IsNaN(d), "distance for %v is NaN", p)
			assert.InDelta(t, 0, d, 1e-6)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		ab := Distance(mountainView, sanJose)
		ba := Distance(sanJose, mountainView)
		assert.InDelta(t, ab, ba, 1e-9)
	})

	t.Run("mountain view to san jose", func(t *testing.T) {
		d := Distance(mountainView, sanJose)
		assert.InDelta(t, 19.83, d, 0.05)
	})

	t.Run("one degree of longitude at the equator", func(t *testing.T) {
		d := DistanceKm(0, 0, 0, 1)
		assert.InDelta(t, EarthRadiusKm*math.Pi/180, d, 1e-6)
	})

	t.Run("antipodal points", func(t *testing.T) {
		d := DistanceKm(0, 0, 0, 180)
		assert.InDelta(t, EarthRadiusKm*math.Pi, d, 1e-6)
	})
}

func TestHaversineAgreesWithCosines(t *testing.T) {
	pairs := [][2]Point{
		{mountainView, sanJose},
		{{Latitude: 40.7128, Longitude: -74.0060}, {Latitude: 51.5074, Longitude: -0.1278}},
		{{Latitude: -33.8688, Longitude: 151.2093}, {Latitude: -37.8136, Longitude: 144.9631}},
	}
	for _, p := range pairs {
		c := DistanceKm(p[0].Latitude, p[0].Longitude, p[1].Latitude, p[1].Longitude)
		h := HaversineKm(p[0].Latitude, p[0].Longitude, p[1].Latitude, p[1].Longitude)
		assert.InDelta(t, c, h, 1e-3, "pair %v", p)
	}
	assert.InDelta(t, 0, HaversineKm(1, 2, 1, 2), 1e-12)
}

func TestFormulaFor(t *testing.T) {
	f, err := FormulaFor("")
	require.NoError(t, err)
	assert.InDelta(t, Distance(mountainView, sanJose), f(37.4221, -122.0841, 37.3382, -121.8863), 1e-9)

	_, err = FormulaFor("haversine")
	require.NoError(t, err)

	_, err = FormulaFor("vincenty")
	assert.Error(t, err)
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		name    string
		lat     string
		lon     string
		wantErr bool
	}{
		{"valid", "37.4221", "-122.0841", false},
		{"whitespace", " 10 ", " 20 ", false},
		{"bounds", "-90", "180", false},
		{"latitude too large", "90.5", "0", true},
		{"longitude too small", "0", "-180.01", true},
		{"not a number", "north", "0", true},
		{"empty", "", "0", true},
		{"nan", "NaN", "0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePoint(tt.lat, tt.lon)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPointIsZero(t *testing.T) {
	assert.True(t, Point{}.IsZero(1e-4))
	assert.True(t, Point{Latitude: 0.0001, Longitude: -0.0001}.IsZero(1e-4))
	assert.False(t, Point{Latitude: 0.001}.IsZero(1e-4))
}

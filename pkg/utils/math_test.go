package utils

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		max  float64
		want float64
	}{
		{"below", 5, 100, 5},
		{"equal", 100, 100, 100},
		{"above", 500, 100, 100},
		{"negative untouched", -1, 100, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampFloat(tt.in, tt.max); got != tt.want {
				t.Errorf("ClampFloat(%v, %v) = %v, want %v", tt.in, tt.max, got, tt.want)
			}
			if got := ClampInt(int(tt.in), int(tt.max)); got != int(tt.want) {
				t.Errorf("ClampInt(%v, %v) = %v, want %v", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

package utils

// ClampInt returns v limited to max. Values below max are returned unchanged.
func ClampInt(v, max int) int {
	if v > max {
		return max
	}
	return v
}

// ClampFloat returns v limited to max.
func ClampFloat(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

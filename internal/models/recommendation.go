package models

import "time"

// Recommendation is a personalised suggestion. Recommendations past their
// expiration are hidden from listings.
type Recommendation struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title" validate:"required"`
	Description string    `json:"description" db:"description"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	Expiration  time.Time `json:"expiration" db:"expiration"`
}

// Active reports whether r has not expired at now.
func (r *Recommendation) Active(now time.Time) bool {
	return r.Expiration.After(now)
}

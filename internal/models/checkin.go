package models

import "time"

// CheckIn records a user visiting a place.
type CheckIn struct {
	ID          int64     `json:"key" db:"id"`
	PlaceID     string    `json:"placeId" db:"place_id" validate:"required"`
	UserEmail   string    `json:"userEmail" db:"user_email"`
	CheckInDate time.Time `json:"checkinDate" db:"checkin_date"`
}

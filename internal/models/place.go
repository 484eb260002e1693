// Package models defines core data structures for places, offers, recommendations, and check-ins.
package models

import "github.com/hyperjump/shopassist/internal/geo"

// Place represents a store location persisted in storage.
type Place struct {
	ID       int64     `json:"placeId" db:"id"`
	Name     string    `json:"name" db:"name" validate:"required"`
	Address  string    `json:"address" db:"address"`
	Location geo.Point `json:"location"`
}

// PlaceResult is a place returned by a proximity search together with its distance to the caller.
type PlaceResult struct {
	PlaceID    int64     `json:"placeId"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Location   geo.Point `json:"location"`
	DistanceKm float64   `json:"distanceInKilometers"`
}

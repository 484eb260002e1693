// Package storage defines the persistence interface for places, offers,
// recommendations, device registrations, and check-ins.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/shopassist/internal/models"
)

// ErrNotFound is wrapped by lookups, updates, and deletes of missing rows.
var ErrNotFound = errors.New("not found")

// Storage defines entity persistence operations.
type Storage interface {
	// Place operations
	CreatePlace(ctx context.Context, p *models.Place) error
	GetPlace(ctx context.Context, id int64) (*models.Place, error)
	UpdatePlace(ctx context.Context, p *models.Place) error
	DeletePlace(ctx context.Context, id int64) error
	ListPlaces(ctx context.Context) ([]*models.Place, error)
	// UpsertPlace inserts p or updates the place with the same name and address.
	UpsertPlace(ctx context.Context, p *models.Place) (created bool, err error)
	CountPlaces(ctx context.Context) (int64, error)

	// Offer operations
	CreateOffer(ctx context.Context, o *models.Offer) error
	GetOffer(ctx context.Context, id int64) (*models.Offer, error)
	UpdateOffer(ctx context.Context, o *models.Offer) error
	DeleteOffer(ctx context.Context, id int64) error
	ListOffers(ctx context.Context) ([]*models.Offer, error)

	// Recommendation operations
	SaveRecommendation(ctx context.Context, r *models.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error)
	DeleteRecommendation(ctx context.Context, id string) error
	ListActiveRecommendations(ctx context.Context, now time.Time) ([]*models.Recommendation, error)

	// Registration operations
	CreateRegistration(ctx context.Context, r *models.Registration) error
	FindRegistration(ctx context.Context, regID string) (*models.Registration, error)
	UpdateRegistration(ctx context.Context, r *models.Registration) error
	DeleteRegistration(ctx context.Context, regID string) error
	ListRegistrations(ctx context.Context, limit int) ([]*models.Registration, error)

	// Check-in operations
	CreateCheckIn(ctx context.Context, c *models.CheckIn) error
	GetCheckIn(ctx context.Context, id int64) (*models.CheckIn, error)
	UpdateCheckIn(ctx context.Context, c *models.CheckIn) error
	DeleteCheckIn(ctx context.Context, id int64) error
	ListCheckIns(ctx context.Context) ([]*models.CheckIn, error)
	// CountCheckInsSince counts the user's check-ins at placeID after since.
	CountCheckInsSince(ctx context.Context, userEmail, placeID string, since time.Time) (int64, error)

	Close() error
}

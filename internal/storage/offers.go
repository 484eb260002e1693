package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperjump/shopassist/internal/models"
)

// CreateOffer inserts o and assigns its ID.
func (s *SQLiteStorage) CreateOffer(ctx context.Context, o *models.Offer) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO offers (title, description, image_url) VALUES (?, ?, ?)`,
		o.Title, o.Description, o.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}
	o.ID, err = res.LastInsertId()
	return err
}

// GetOffer returns an offer by ID.
func (s *SQLiteStorage) GetOffer(ctx context.Context, id int64) (*models.Offer, error) {
	var o models.Offer
	var desc, image sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, image_url FROM offers WHERE id = ?`, id,
	).Scan(&o.ID, &o.Title, &desc, &image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("offer", id)
	}
	if err != nil {
		return nil, err
	}
	o.Description, o.ImageURL = desc.String, image.String
	return &o, nil
}

// UpdateOffer updates an existing offer.
func (s *SQLiteStorage) UpdateOffer(ctx context.Context, o *models.Offer) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE offers SET title = ?, description = ?, image_url = ? WHERE id = ?`,
		o.Title, o.Description, o.ImageURL, o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}
	return expectOne(res, "offer", o.ID)
}

// DeleteOffer removes an offer by ID.
func (s *SQLiteStorage) DeleteOffer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM offers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "offer", id)
}

// ListOffers returns all offers ordered by ID.
func (s *SQLiteStorage) ListOffers(ctx context.Context) ([]*models.Offer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, description, image_url FROM offers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Offer
	for rows.Next() {
		var o models.Offer
		var desc, image sql.NullString
		if err := rows.Scan(&o.ID, &o.Title, &desc, &image); err != nil {
			return nil, err
		}
		o.Description, o.ImageURL = desc.String, image.String
		out = append(out, &o)
	}
	return out, rows.Err()
}

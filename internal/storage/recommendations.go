package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/shopassist/internal/models"
)

// SaveRecommendation inserts r or replaces the recommendation with the same ID.
func (s *SQLiteStorage) SaveRecommendation(ctx context.Context, r *models.Recommendation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recommendations (id, title, description, image_url, expiration)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			image_url = excluded.image_url,
			expiration = excluded.expiration`,
		r.ID, r.Title, r.Description, r.ImageURL, toUnix(r.Expiration),
	)
	if err != nil {
		return fmt.Errorf("failed to save recommendation: %w", err)
	}
	return nil
}

// GetRecommendation returns a recommendation by ID, expired or not.
func (s *SQLiteStorage) GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error) {
	r, err := scanRecommendation(s.db.QueryRowContext(ctx,
		`SELECT id, title, description, image_url, expiration FROM recommendations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("recommendation", id)
	}
	return r, err
}

// DeleteRecommendation removes a recommendation by ID.
func (s *SQLiteStorage) DeleteRecommendation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recommendations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "recommendation", id)
}

// ListActiveRecommendations returns recommendations expiring strictly after now, soonest first.
func (s *SQLiteStorage) ListActiveRecommendations(ctx context.Context, now time.Time) ([]*models.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, image_url, expiration
		FROM recommendations WHERE expiration > ? ORDER BY expiration, id`, toUnix(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecommendation(row interface{ Scan(...interface{}) error }) (*models.Recommendation, error) {
	var r models.Recommendation
	var desc, image sql.NullString
	var exp int64
	if err := row.Scan(&r.ID, &r.Title, &desc, &image, &exp); err != nil {
		return nil, err
	}
	r.Description, r.ImageURL = desc.String, image.String
	r.Expiration = fromUnix(exp)
	return &r, nil
}

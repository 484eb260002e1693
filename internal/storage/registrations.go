package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperjump/shopassist/internal/models"
)

// CreateRegistration inserts r and assigns its ID. Registering a known device ID fails.
func (s *SQLiteStorage) CreateRegistration(ctx context.Context, r *models.Registration) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO registrations (reg_id) VALUES (?)`, r.RegID)
	if err != nil {
		return fmt.Errorf("failed to insert registration: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// FindRegistration returns the registration holding regID.
func (s *SQLiteStorage) FindRegistration(ctx context.Context, regID string) (*models.Registration, error) {
	var r models.Registration
	err := s.db.QueryRowContext(ctx,
		`SELECT id, reg_id FROM registrations WHERE reg_id = ?`, regID,
	).Scan(&r.ID, &r.RegID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("registration", regID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRegistration rewrites the device ID of the registration with r.ID.
func (s *SQLiteStorage) UpdateRegistration(ctx context.Context, r *models.Registration) error {
	res, err := s.db.ExecContext(ctx, `UPDATE registrations SET reg_id = ? WHERE id = ?`, r.RegID, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}
	return expectOne(res, "registration", r.ID)
}

// DeleteRegistration removes the registration holding regID.
func (s *SQLiteStorage) DeleteRegistration(ctx context.Context, regID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registrations WHERE reg_id = ?`, regID)
	if err != nil {
		return err
	}
	return expectOne(res, "registration", regID)
}

// ListRegistrations returns up to limit registrations ordered by ID.
func (s *SQLiteStorage) ListRegistrations(ctx context.Context, limit int) ([]*models.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, reg_id FROM registrations ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		var r models.Registration
		if err := rows.Scan(&r.ID, &r.RegID); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

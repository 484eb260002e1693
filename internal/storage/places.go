package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperjump/shopassist/internal/models"
)

const placeColumns = `id, name, address, latitude, longitude`

func scanPlace(row interface{ Scan(...interface{}) error }) (*models.Place, error) {
	var p models.Place
	if err := row.Scan(&p.ID, &p.Name, &p.Address, &p.Location.Latitude, &p.Location.Longitude); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlace inserts p. A zero ID is assigned by the database and written back to p.
func (s *SQLiteStorage) CreatePlace(ctx context.Context, p *models.Place) error {
	var id sql.NullInt64
	if p.ID != 0 {
		id = sql.NullInt64{Int64: p.ID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO places (id, name, address, latitude, longitude) VALUES (?, ?, ?, ?, ?)`,
		id, p.Name, p.Address, p.Location.Latitude, p.Location.Longitude,
	)
	if err != nil {
		return fmt.Errorf("failed to insert place: %w", err)
	}
	if p.ID == 0 {
		if p.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

// GetPlace returns a place by ID.
func (s *SQLiteStorage) GetPlace(ctx context.Context, id int64) (*models.Place, error) {
	p, err := scanPlace(s.db.QueryRowContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("place", id)
	}
	return p, err
}

// UpdatePlace updates an existing place.
func (s *SQLiteStorage) UpdatePlace(ctx context.Context, p *models.Place) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE places SET name = ?, address = ?, latitude = ?, longitude = ? WHERE id = ?`,
		p.Name, p.Address, p.Location.Latitude, p.Location.Longitude, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update place: %w", err)
	}
	return expectOne(res, "place", p.ID)
}

// DeletePlace removes a place by ID.
func (s *SQLiteStorage) DeletePlace(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "place", id)
}

// ListPlaces returns every place ordered by ID.
func (s *SQLiteStorage) ListPlaces(ctx context.Context) ([]*models.Place, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+placeColumns+` FROM places ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Place
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPlace inserts p, or updates the location of the place with the same name and address.
// p.ID is set to the stored row's ID.
func (s *SQLiteStorage) UpsertPlace(ctx context.Context, p *models.Place) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM places WHERE name = ? AND address = ?`, p.Name, p.Address,
	).Scan(&existing)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE places SET latitude = ?, longitude = ? WHERE id = ?`,
			p.Location.Latitude, p.Location.Longitude, existing,
		); err != nil {
			return false, fmt.Errorf("failed to update place: %w", err)
		}
		p.ID = existing
		return false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}

	var id sql.NullInt64
	if p.ID != 0 {
		id = sql.NullInt64{Int64: p.ID, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO places (id, name, address, latitude, longitude) VALUES (?, ?, ?, ?, ?)`,
		id, p.Name, p.Address, p.Location.Latitude, p.Location.Longitude,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert place: %w", err)
	}
	if p.ID == 0 {
		if p.ID, err = res.LastInsertId(); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// CountPlaces returns the total number of places.
func (s *SQLiteStorage) CountPlaces(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places`).Scan(&count)
	return count, err
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/shopassist/internal/models"
)

// CreateCheckIn inserts c and assigns its ID. A zero CheckInDate is set to the current time.
func (s *SQLiteStorage) CreateCheckIn(ctx context.Context, c *models.CheckIn) error {
	if c.CheckInDate.IsZero() {
		c.CheckInDate = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO checkins (place_id, user_email, checkin_date) VALUES (?, ?, ?)`,
		c.PlaceID, c.UserEmail, toUnix(c.CheckInDate),
	)
	if err != nil {
		return fmt.Errorf("failed to insert check-in: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// GetCheckIn returns a check-in by ID.
func (s *SQLiteStorage) GetCheckIn(ctx context.Context, id int64) (*models.CheckIn, error) {
	c, err := scanCheckIn(s.db.QueryRowContext(ctx,
		`SELECT id, place_id, user_email, checkin_date FROM checkins WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("check-in", id)
	}
	return c, err
}

// UpdateCheckIn updates an existing check-in.
func (s *SQLiteStorage) UpdateCheckIn(ctx context.Context, c *models.CheckIn) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE checkins SET place_id = ?, user_email = ?, checkin_date = ? WHERE id = ?`,
		c.PlaceID, c.UserEmail, toUnix(c.CheckInDate), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update check-in: %w", err)
	}
	return expectOne(res, "check-in", c.ID)
}

// DeleteCheckIn removes a check-in by ID.
func (s *SQLiteStorage) DeleteCheckIn(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkins WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "check-in", id)
}

// ListCheckIns returns all check-ins ordered by ID.
func (s *SQLiteStorage) ListCheckIns(ctx context.Context) ([]*models.CheckIn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, place_id, user_email, checkin_date FROM checkins ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCheckInsSince counts check-ins by userEmail at placeID strictly after since.
func (s *SQLiteStorage) CountCheckInsSince(ctx context.Context, userEmail, placeID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM checkins
		WHERE user_email = ? AND place_id = ? AND checkin_date > ?`,
		userEmail, placeID, toUnix(since),
	).Scan(&n)
	return n, err
}

func scanCheckIn(row interface{ Scan(...interface{}) error }) (*models.CheckIn, error) {
	var c models.CheckIn
	var date int64
	if err := row.Scan(&c.ID, &c.PlaceID, &c.UserEmail, &date); err != nil {
		return nil, err
	}
	c.CheckInDate = fromUnix(date)
	return &c, nil
}

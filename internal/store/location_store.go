package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ayoubbns/vinscan/internal/domain"
)

type LocationStore struct {
	db *sql.DB
}

func NewLocationStore(db *sql.DB) *LocationStore {
	return &LocationStore{db: db}
}

// Create adds a location. Names are upper-cased on entry by convention; no
// uniqueness is enforced beyond that.
func (s *LocationStore) Create(ctx context.Context, name string) (*domain.Location, error) {
	loc := &domain.Location{
		ID:   uuid.NewString(),
		Name: strings.ToUpper(strings.TrimSpace(name)),
	}
	if loc.Name == "" {
		return nil, fmt.Errorf("location name is required")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO locations (id, name) VALUES (?, ?)`, loc.ID, loc.Name); err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	return loc, nil
}

func (s *LocationStore) GetByID(ctx context.Context, id string) (*domain.Location, error) {
	loc := &domain.Location{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM locations WHERE id = ?`, id).
		Scan(&loc.ID, &loc.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return loc, nil
}

func (s *LocationStore) List(ctx context.Context) ([]*domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM locations ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []*domain.Location
	for rows.Next() {
		loc := &domain.Location{}
		if err := rows.Scan(&loc.ID, &loc.Name); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return locations, nil
}

func (s *LocationStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

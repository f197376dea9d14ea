package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ayoubbns/vinscan/internal/domain"
)

// ErrNotFound is returned when a record targeted by id does not exist.
var ErrNotFound = errors.New("record not found")

type ScanStore struct {
	db *sql.DB
}

func NewScanStore(db *sql.DB) *ScanStore {
	return &ScanStore{db: db}
}

const scanColumns = `id, created_at, operator_id, operator_name, location_id, location_name,
	vin, brand, model, fuel_type, motorization, year_of_manufacture, registration_year,
	license_plate, color, inventory_notes, deduction_reasoning,
	market_value_min, market_value_max, market_value_justification,
	analysis_report, scan_duration_ms, photo_key`

func (s *ScanStore) Insert(ctx context.Context, rec *domain.ScanRecord) error {
	a := rec.Analysis
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (`+scanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Timestamp.UnixMilli(), rec.OperatorID, rec.OperatorName,
		rec.LocationID, rec.LocationName,
		a.VIN, a.Brand, a.Model, string(a.FuelType), a.Motorization,
		a.YearOfManufacture, a.RegistrationYear, a.LicensePlate, a.Color,
		a.InventoryNotes, a.DeductionReasoning,
		a.MarketValueMin, a.MarketValueMax, a.MarketValueJustification,
		rec.AnalysisReport, rec.ScanDurationMS, rec.PhotoKey,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

func (s *ScanStore) GetByID(ctx context.Context, id string) (*domain.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return rec, nil
}

// List returns all scans, newest first.
func (s *ScanStore) List(ctx context.Context) ([]*domain.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scanColumns+` FROM scans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return collectScans(rows)
}

// ListSince returns scans committed strictly after cutoff, newest first.
func (s *ScanStore) ListSince(ctx context.Context, cutoff time.Time) ([]*domain.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scanColumns+` FROM scans WHERE created_at > ? ORDER BY created_at DESC
	`, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return collectScans(rows)
}

func (s *ScanStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
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

// SetReport caches the deep analysis report on an existing record.
func (s *ScanStore) SetReport(ctx context.Context, id, report string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE scans SET analysis_report = ? WHERE id = ?`, report, id)
	if err != nil {
		return fmt.Errorf("failed to set report: %w", err)
	}
	return requireAffected(result)
}

// SetMarketValue attaches the estimated value range to an existing record.
func (s *ScanStore) SetMarketValue(ctx context.Context, id string, min, max int64, justification string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scans SET market_value_min = ?, market_value_max = ?, market_value_justification = ?
		WHERE id = ?
	`, min, max, justification, id)
	if err != nil {
		return fmt.Errorf("failed to set market value: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ScanRecord, error) {
	rec := &domain.ScanRecord{}
	var createdAt int64
	var fuel string
	err := row.Scan(
		&rec.ID, &createdAt, &rec.OperatorID, &rec.OperatorName,
		&rec.LocationID, &rec.LocationName,
		&rec.Analysis.VIN, &rec.Analysis.Brand, &rec.Analysis.Model, &fuel,
		&rec.Analysis.Motorization, &rec.Analysis.YearOfManufacture,
		&rec.Analysis.RegistrationYear, &rec.Analysis.LicensePlate,
		&rec.Analysis.Color, &rec.Analysis.InventoryNotes, &rec.Analysis.DeductionReasoning,
		&rec.Analysis.MarketValueMin, &rec.Analysis.MarketValueMax,
		&rec.Analysis.MarketValueJustification,
		&rec.AnalysisReport, &rec.ScanDurationMS, &rec.PhotoKey,
	)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = time.UnixMilli(createdAt)
	rec.Analysis.FuelType = domain.FuelType(fuel)
	return rec, nil
}

func collectScans(rows *sql.Rows) ([]*domain.ScanRecord, error) {
	defer rows.Close()

	var records []*domain.ScanRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scans: %w", err)
	}
	return records, nil
}

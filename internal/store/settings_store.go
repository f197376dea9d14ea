package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ayoubbns/vinscan/internal/domain"
)

// SettingsStore persists the singleton settings row. Load overlays the
// persisted values on the defaults; Save overwrites the row wholesale.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	set := domain.DefaultSettings()
	var policy, language string
	err := s.db.QueryRowContext(ctx, `
		SELECT duplicate_window_hours, duplicate_policy, monthly_target,
		       company_name, app_name, language
		FROM settings WHERE id = 1
	`).Scan(&set.DuplicateWindowHours, &policy, &set.MonthlyTarget,
		&set.CompanyName, &set.AppName, &language)
	if errors.Is(err, sql.ErrNoRows) {
		return set, nil
	}
	if err != nil {
		return domain.DefaultSettings(), fmt.Errorf("failed to load settings: %w", err)
	}
	set.DuplicatePolicy = domain.DuplicatePolicy(policy)
	set.Language = domain.Language(language)
	return set, nil
}

func (s *SettingsStore) Save(ctx context.Context, set domain.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, duplicate_window_hours, duplicate_policy, monthly_target,
		                      company_name, app_name, language)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			duplicate_window_hours = excluded.duplicate_window_hours,
			duplicate_policy = excluded.duplicate_policy,
			monthly_target = excluded.monthly_target,
			company_name = excluded.company_name,
			app_name = excluded.app_name,
			language = excluded.language
	`, set.DuplicateWindowHours, string(set.DuplicatePolicy), set.MonthlyTarget,
		set.CompanyName, set.AppName, string(set.Language))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ayoubbns/vinscan/internal/db"
	"github.com/ayoubbns/vinscan/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func testRecord(ts time.Time, vin, brand, model string) *domain.ScanRecord {
	return &domain.ScanRecord{
		ID:           uuid.NewString(),
		Timestamp:    ts,
		OperatorID:   "1",
		OperatorName: "Administrateur",
		LocationID:   "default-1",
		LocationName: "SIÈGE / DÉPÔT",
		Analysis: domain.VehicleAnalysis{
			VIN:      vin,
			Brand:    brand,
			Model:    model,
			FuelType: domain.FuelDiesel,
		},
	}
}

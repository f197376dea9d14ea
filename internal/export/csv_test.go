package export

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoubbns/vinscan/internal/domain"
)

func sampleRecord() *domain.ScanRecord {
	return &domain.ScanRecord{
		ID:           "scan-1",
		Timestamp:    time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC),
		OperatorName: "Agent Un",
		LocationName: "SIÈGE / DÉPÔT",
		Analysis: domain.VehicleAnalysis{
			VIN:               "VF1RFB00353267871",
			Brand:             "RENAULT",
			Model:             "CLIO V",
			FuelType:          domain.FuelDiesel,
			Motorization:      "1.5 dCi 115",
			YearOfManufacture: "2021",
			LicensePlate:      "12345-A-6",
			Color:             "Gris",
			InventoryNotes:    `rayure aile "avant" droite`,
			MarketValueMin:    120000,
			MarketValueMax:    145000,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, []*domain.ScanRecord{sampleRecord()}))
	out := sb.String()

	require.True(t, strings.HasPrefix(out, "\uFEFF"))

	lines := strings.Split(strings.TrimPrefix(out, "\uFEFF"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date Scan;VIN;Marque;Modèle;Année Fab.;Immatriculation;Carburant;Motorisation;Couleur;Valeur Min (MAD);Valeur Max (MAD);Notes;Utilisateur;Lieu", lines[0])

	assert.Contains(t, lines[1], `"14/03/2025 15:09:26"`)
	assert.Contains(t, lines[1], `"VF1RFB00353267871"`)
	assert.Contains(t, lines[1], `"rayure aile ""avant"" droite"`)
	assert.Contains(t, lines[1], `"120000";"145000"`)
}

// The output must survive a strict CSV parse with semicolon separators, the
// dialect Excel FR applies.
func TestWriteCSV_RoundTrip(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, []*domain.ScanRecord{sampleRecord()}))

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(sb.String(), "\uFEFF")))
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rows[1], 14)

	assert.Equal(t, "RENAULT", rows[1][2])
	assert.Equal(t, "Diesel", rows[1][6])
	assert.Equal(t, `rayure aile "avant" droite`, rows[1][11])
	assert.Equal(t, "SIÈGE / DÉPÔT", rows[1][13])
}

func TestWriteCSV_Fallbacks(t *testing.T) {
	rec := &domain.ScanRecord{Timestamp: time.Now()}

	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, []*domain.ScanRecord{rec}))

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(sb.String(), "\uFEFF")))
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, "N/A", rows[1][1])
	assert.Equal(t, "Inconnu", rows[1][2])
	assert.Equal(t, "Inconnu", rows[1][3])
	assert.Equal(t, "", rows[1][9])
	assert.Equal(t, "", rows[1][10])
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "inventaire_vehicules_2025-03-14.csv", Filename(now))
}

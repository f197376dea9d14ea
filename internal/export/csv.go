// Package export renders the inventory as Excel-compatible CSV.
package export

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ayoubbns/vinscan/internal/domain"
)

// Excel (French locale) expects semicolons and a UTF-8 BOM; encoding/csv can
// produce neither a BOM nor force-quoted fields, so the rows are assembled by
// hand.
const (
	bom       = "\uFEFF"
	separator = ";"
)

// timeLayout follows the fr-MA convention: day first, 24-hour clock.
const timeLayout = "02/01/2006 15:04:05"

var headers = []string{
	"Date Scan",
	"VIN",
	"Marque",
	"Modèle",
	"Année Fab.",
	"Immatriculation",
	"Carburant",
	"Motorisation",
	"Couleur",
	"Valeur Min (MAD)",
	"Valeur Max (MAD)",
	"Notes",
	"Utilisateur",
	"Lieu",
}

// Filename returns the suggested download name for an export made on the
// given day.
func Filename(now time.Time) string {
	return "inventaire_vehicules_" + now.Format("2006-01-02") + ".csv"
}

// WriteCSV writes the records as CSV. The header row is unquoted; every data
// field is quoted, with internal quotes doubled.
func WriteCSV(w io.Writer, records []*domain.ScanRecord) error {
	var b strings.Builder
	b.WriteString(bom)
	b.WriteString(strings.Join(headers, separator))

	for _, rec := range records {
		a := rec.Analysis
		fields := []string{
			rec.Timestamp.Format(timeLayout),
			fallback(a.VIN, "N/A"),
			fallback(a.Brand, "Inconnu"),
			fallback(a.Model, "Inconnu"),
			a.YearOfManufacture,
			a.LicensePlate,
			string(a.FuelType),
			a.Motorization,
			a.Color,
			amount(a.MarketValueMin),
			amount(a.MarketValueMax),
			a.InventoryNotes,
			rec.OperatorName,
			rec.LocationName,
		}
		b.WriteString("\n")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(separator)
			}
			b.WriteString(quote(f))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// amount renders zero as empty; zero means no estimate was made.
func amount(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

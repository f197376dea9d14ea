package ai

import (
	"context"
	"errors"

	"github.com/ayoubbns/vinscan/internal/domain"
)

// Classified failure buckets. Anything not matching these wraps the
// underlying error and is surfaced with its detail.
var (
	ErrInvalidCredentials = errors.New("extraction service rejected the credentials")
	ErrRateLimited        = errors.New("extraction service rate limit exceeded")
)

// Extraction is the best-effort field set a single extraction call returns.
// Absent fields are empty strings; the caller decides placeholders.
type Extraction struct {
	VIN                string
	Brand              string
	Model              string
	Motorization       string
	FuelType           string
	YearOfManufacture  string
	RegistrationYear   string
	LicensePlate       string
	Color              string
	DeductionReasoning string
}

// ValueEstimate is a market value range in whole MAD.
type ValueEstimate struct {
	Min           int64
	Max           int64
	Justification string
}

// VehicleIntel is the contract with the external vision/text extraction
// service. Every call can fail; a malformed structured response is a
// terminal error for that call.
type VehicleIntel interface {
	// CriticalScan is the fast first pass over a captured image: VIN,
	// brand, plate and reasoning.
	CriticalScan(ctx context.Context, image []byte, mimeType string, mode domain.ScanMode) (*Extraction, error)

	// RefineDetails is the slower second pass enhancing optional fields,
	// given the image and the brand found by the critical pass.
	RefineDetails(ctx context.Context, image []byte, mimeType string, brand string) (*Extraction, error)

	// DecodeVIN decodes a typed VIN with no image involved.
	DecodeVIN(ctx context.Context, vin string) (*Extraction, error)

	// ExpertiseReport produces a free-text expertise report for a VIN.
	ExpertiseReport(ctx context.Context, vin string) (string, error)

	// EstimateValue estimates a market value range for an analyzed vehicle.
	EstimateValue(ctx context.Context, analysis domain.VehicleAnalysis) (*ValueEstimate, error)

	// Chat continues an expert conversation with a new message.
	Chat(ctx context.Context, history []domain.ChatMessage, message string) (string, error)
}

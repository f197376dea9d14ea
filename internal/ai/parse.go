package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CleanJSON strips the markdown code fences models like to wrap JSON in.
func CleanJSON(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// NormalizeVIN upper-cases a VIN and drops everything outside [A-Z0-9].
func NormalizeVIN(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// flexString tolerates models returning numbers (or bare literals) where a
// string was asked for.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

type extractionPayload struct {
	VIN                flexString `json:"vin"`
	Brand              flexString `json:"brand"`
	Model              flexString `json:"model"`
	Motorization       flexString `json:"motorization"`
	FuelType           flexString `json:"fuelType"`
	YearOfManufacture  flexString `json:"yearOfManufacture"`
	RegistrationYear   flexString `json:"registrationYear"`
	LicensePlate       flexString `json:"licensePlate"`
	Color              flexString `json:"color"`
	DeductionReasoning flexString `json:"deductionReasoning"`
}

// DecodeExtraction parses a (possibly fenced) JSON extraction response.
// A response that is not valid JSON is a terminal error for the call.
func DecodeExtraction(raw string) (*Extraction, error) {
	var p extractionPayload
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &p); err != nil {
		return nil, fmt.Errorf("malformed extraction response: %w", err)
	}
	return &Extraction{
		VIN:                string(p.VIN),
		Brand:              string(p.Brand),
		Model:              string(p.Model),
		Motorization:       string(p.Motorization),
		FuelType:           string(p.FuelType),
		YearOfManufacture:  string(p.YearOfManufacture),
		RegistrationYear:   string(p.RegistrationYear),
		LicensePlate:       string(p.LicensePlate),
		Color:              string(p.Color),
		DeductionReasoning: string(p.DeductionReasoning),
	}, nil
}

type valuePayload struct {
	Min           flexString `json:"marketValueMin"`
	Max           flexString `json:"marketValueMax"`
	Justification flexString `json:"marketValueJustification"`
}

// DecodeValueEstimate parses a market value response. Amounts may arrive as
// numbers or strings with decoration; only the digits are kept.
func DecodeValueEstimate(raw string) (*ValueEstimate, error) {
	var p valuePayload
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &p); err != nil {
		return nil, fmt.Errorf("malformed value response: %w", err)
	}
	return &ValueEstimate{
		Min:           parseAmount(string(p.Min)),
		Max:           parseAmount(string(p.Max)),
		Justification: string(p.Justification),
	}, nil
}

func parseAmount(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

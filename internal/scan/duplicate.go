package scan

import "github.com/ayoubbns/vinscan/internal/domain"

// FindDuplicate returns the most recent prior record matching the candidate
// analysis, or nil. Priors are expected newest first. A readable VIN is the
// primary key; without one, brand plus model is the fallback so a vehicle
// with an unreadable plate still gets flagged. Placeholder values never
// match: half-read fields must not chain unrelated records together.
func FindDuplicate(analysis domain.VehicleAnalysis, priors []*domain.ScanRecord) *domain.ScanRecord {
	if known(analysis.VIN) {
		for _, p := range priors {
			if p.Analysis.VIN == analysis.VIN {
				return p
			}
		}
		return nil
	}

	if !known(analysis.Brand) || !known(analysis.Model) {
		return nil
	}
	for _, p := range priors {
		if p.Analysis.Brand == analysis.Brand && p.Analysis.Model == analysis.Model {
			return p
		}
	}
	return nil
}

// known reports whether a field holds an extracted value rather than a
// review placeholder.
func known(v string) bool {
	switch v {
	case "", PlaceholderEmpty, PlaceholderBrand, PlaceholderPending:
		return false
	}
	return true
}

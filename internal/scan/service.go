package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayoubbns/vinscan/internal/ai"
	"github.com/ayoubbns/vinscan/internal/domain"
	"github.com/ayoubbns/vinscan/internal/photostore"
)

// Review placeholders shown until the refinement pass (or the operator)
// fills the field in.
const (
	PlaceholderBrand   = "INCONNU"
	PlaceholderPending = "ANALYSE..."
	PlaceholderEmpty   = "..."
)

// refineTimeout bounds the background detail pass. Past it the in-flight
// request is cancelled and the critical-pass values stand.
const refineTimeout = 15 * time.Second

// minVINLength is the shortest manual VIN accepted. Partial VINs are common
// on older Moroccan registrations, full ISO VINs are 17 characters.
const minVINLength = 5

var (
	ErrDraftNotFound   = errors.New("draft not found")
	ErrRecordNotFound  = errors.New("scan record not found")
	ErrInvalidVIN      = fmt.Errorf("vin must contain at least %d characters", minVINLength)
	ErrUnknownLocation = errors.New("unknown location")

	// ErrDuplicate is returned at commit time when the duplicate policy is
	// "block" and the VIN was already inventoried inside the window.
	ErrDuplicate = errors.New("vehicle already scanned inside the duplicate window")
)

// Draft is a pending scan between capture and commit. It lives in memory
// only; discarding the draft leaves no trace.
type Draft struct {
	ID        string                 `json:"id"`
	Mode      domain.ScanMode        `json:"mode"`
	StartedAt time.Time              `json:"startedAt"`
	Refining  bool                   `json:"refining"`
	Analysis  domain.VehicleAnalysis `json:"analysis"`

	image    []byte
	mimeType string
}

// RecordStore is the subset of the scan persistence layer the service uses.
type RecordStore interface {
	Insert(ctx context.Context, rec *domain.ScanRecord) error
	GetByID(ctx context.Context, id string) (*domain.ScanRecord, error)
	List(ctx context.Context) ([]*domain.ScanRecord, error)
	ListSince(ctx context.Context, cutoff time.Time) ([]*domain.ScanRecord, error)
	Delete(ctx context.Context, id string) error
	SetReport(ctx context.Context, id, report string) error
	SetMarketValue(ctx context.Context, id string, min, max int64, justification string) error
}

// SettingsSource loads the runtime settings. Implementations fall back to
// defaults on read failure, so Load is always usable.
type SettingsSource interface {
	Load(ctx context.Context) (domain.Settings, error)
}

// LocationSource resolves location ids at commit time.
type LocationSource interface {
	GetByID(ctx context.Context, id string) (*domain.Location, error)
}

// Service drives the capture pipeline: critical pass, background refinement,
// review drafts, duplicate guard and commit.
type Service struct {
	intel      ai.VehicleIntel
	records    RecordStore
	settings   SettingsSource
	locations  LocationSource
	photos     photostore.PhotoStore
	savePhotos bool

	refineTimeout time.Duration

	mu     sync.Mutex
	drafts map[string]*Draft
}

func NewService(intel ai.VehicleIntel, records RecordStore, settings SettingsSource, locations LocationSource, photos photostore.PhotoStore, savePhotos bool) *Service {
	return &Service{
		intel:         intel,
		records:       records,
		settings:      settings,
		locations:     locations,
		photos:        photos,
		savePhotos:    savePhotos,
		refineTimeout: refineTimeout,
		drafts:        make(map[string]*Draft),
	}
}

// StartImageScan runs the critical pass on a captured image and opens a
// review draft. The refinement pass continues in the background; a failure
// there keeps the critical-pass values.
func (s *Service) StartImageScan(ctx context.Context, image []byte, mimeType string, mode domain.ScanMode) (*Draft, error) {
	started := time.Now()

	critical, err := s.intel.CriticalScan(ctx, image, mimeType, mode)
	if err != nil {
		return nil, fmt.Errorf("critical scan failed: %w", err)
	}

	d := &Draft{
		ID:        uuid.New().String(),
		Mode:      mode,
		StartedAt: started,
		Refining:  true,
		Analysis: domain.VehicleAnalysis{
			VIN:                critical.VIN,
			Brand:              orPlaceholder(critical.Brand, PlaceholderBrand),
			Model:              orPlaceholder(critical.Model, PlaceholderPending),
			FuelType:           domain.FuelUnknown,
			Motorization:       PlaceholderPending,
			YearOfManufacture:  orPlaceholder(critical.YearOfManufacture, PlaceholderEmpty),
			RegistrationYear:   orPlaceholder(critical.RegistrationYear, PlaceholderEmpty),
			LicensePlate:       critical.LicensePlate,
			Color:              PlaceholderEmpty,
			DeductionReasoning: critical.DeductionReasoning,
		},
		image:    image,
		mimeType: mimeType,
	}

	s.mu.Lock()
	s.drafts[d.ID] = d
	s.mu.Unlock()

	go s.refine(d.ID, image, mimeType, d.Analysis.Brand)

	return d.clone(), nil
}

// refine runs the detail pass with its own deadline, detached from the
// request that opened the draft.
func (s *Service) refine(draftID string, image []byte, mimeType, brand string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.refineTimeout)
	defer cancel()

	refined, err := s.intel.RefineDetails(ctx, image, mimeType, brand)
	if err != nil {
		slog.Warn("refinement pass abandoned", "draft_id", draftID, "error", err)
		s.finishRefinement(draftID, nil)
		return
	}
	s.finishRefinement(draftID, refined)
}

// finishRefinement merges non-empty refined fields into the draft, if it
// still exists, and clears the refining flag. Fields the operator already
// sees keep their value when the refinement came back empty.
func (s *Service) finishRefinement(draftID string, refined *ai.Extraction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[draftID]
	if !ok {
		return
	}
	d.Refining = false
	if refined == nil {
		return
	}

	a := &d.Analysis
	a.Model = pick(refined.Model, a.Model)
	a.Motorization = pick(refined.Motorization, a.Motorization)
	a.YearOfManufacture = pick(refined.YearOfManufacture, a.YearOfManufacture)
	a.RegistrationYear = pick(refined.RegistrationYear, a.RegistrationYear)
	a.LicensePlate = pick(refined.LicensePlate, a.LicensePlate)
	a.Color = pick(refined.Color, a.Color)
	if ft, ok := domain.ParseFuelType(strings.TrimSpace(refined.FuelType)); ok {
		a.FuelType = ft
	}
}

// StartVINScan opens a review draft from a typed VIN. No image is involved
// and no refinement runs; the decode call is the whole analysis.
func (s *Service) StartVINScan(ctx context.Context, vin string) (*Draft, error) {
	vin = ai.NormalizeVIN(vin)
	if len(vin) < minVINLength {
		return nil, ErrInvalidVIN
	}

	started := time.Now()

	ext, err := s.intel.DecodeVIN(ctx, vin)
	if err != nil {
		return nil, fmt.Errorf("vin decode failed: %w", err)
	}

	fuel := domain.FuelUnknown
	if ft, ok := domain.ParseFuelType(strings.TrimSpace(ext.FuelType)); ok {
		fuel = ft
	}

	d := &Draft{
		ID:        uuid.New().String(),
		Mode:      domain.ScanModeVIN,
		StartedAt: started,
		Analysis: domain.VehicleAnalysis{
			VIN:                vin,
			Brand:              orPlaceholder(ext.Brand, PlaceholderBrand),
			Model:              orPlaceholder(ext.Model, PlaceholderBrand),
			FuelType:           fuel,
			Motorization:       ext.Motorization,
			YearOfManufacture:  orPlaceholder(ext.YearOfManufacture, PlaceholderEmpty),
			Color:              orPlaceholder(ext.Color, PlaceholderEmpty),
			DeductionReasoning: ext.DeductionReasoning,
		},
	}

	s.mu.Lock()
	s.drafts[d.ID] = d
	s.mu.Unlock()

	return d.clone(), nil
}

// Draft returns a snapshot of a pending draft.
func (s *Service) Draft(id string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return d.clone(), nil
}

// UpdateDraft replaces the draft analysis with operator-edited values.
func (s *Service) UpdateDraft(id string, analysis domain.VehicleAnalysis) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	d.Analysis = analysis
	return d.clone(), nil
}

// Discard drops a pending draft without committing anything.
func (s *Service) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[id]; !ok {
		return ErrDraftNotFound
	}
	delete(s.drafts, id)
	return nil
}

// Commit turns a draft into a permanent record. The returned bool reports a
// duplicate hit under the "warn" policy; under "block" the commit fails with
// ErrDuplicate instead.
func (s *Service) Commit(ctx context.Context, draftID string, op *domain.Operator, locationID string) (*domain.ScanRecord, bool, error) {
	s.mu.Lock()
	d, ok := s.drafts[draftID]
	var snapshot Draft
	if ok {
		snapshot = *d
	}
	s.mu.Unlock()
	if !ok {
		return nil, false, ErrDraftNotFound
	}

	loc, err := s.locations.GetByID(ctx, locationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve location: %w", err)
	}
	if loc == nil {
		return nil, false, ErrUnknownLocation
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		slog.Warn("settings unreadable at commit, using defaults", "error", err)
	}

	now := time.Now()
	duplicate := false
	if window := time.Duration(settings.DuplicateWindowHours) * time.Hour; window > 0 {
		priors, err := s.records.ListSince(ctx, now.Add(-window))
		if err != nil {
			return nil, false, fmt.Errorf("duplicate check failed: %w", err)
		}
		if prior := FindDuplicate(snapshot.Analysis, priors); prior != nil {
			if settings.DuplicatePolicy == domain.DuplicateBlock {
				return nil, true, fmt.Errorf("%w: %s at %s", ErrDuplicate,
					prior.Analysis.VIN, prior.Timestamp.Format(time.RFC3339))
			}
			duplicate = true
		}
	}

	rec := &domain.ScanRecord{
		ID:             uuid.New().String(),
		Timestamp:      now,
		OperatorID:     op.ID,
		OperatorName:   op.Name,
		LocationID:     loc.ID,
		LocationName:   loc.Name,
		Analysis:       snapshot.Analysis,
		ScanDurationMS: now.Sub(snapshot.StartedAt).Milliseconds(),
	}
	if s.savePhotos && len(snapshot.image) > 0 {
		rec.PhotoKey = rec.ID
	}

	if err := s.records.Insert(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("failed to save scan: %w", err)
	}

	if rec.PhotoKey != "" {
		if err := s.photos.Save(ctx, rec.PhotoKey, snapshot.mimeType, bytes.NewReader(snapshot.image)); err != nil {
			slog.Warn("failed to save scan photo", "scan_id", rec.ID, "error", err)
		}
	}

	s.mu.Lock()
	delete(s.drafts, draftID)
	s.mu.Unlock()

	slog.Info("scan committed",
		"scan_id", rec.ID, "vin", rec.Analysis.VIN,
		"operator", op.Username, "location", loc.Name, "duplicate", duplicate)

	return rec, duplicate, nil
}

// Record returns one committed scan.
func (s *Service) Record(ctx context.Context, id string) (*domain.ScanRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// Records returns all committed scans, newest first.
func (s *Service) Records(ctx context.Context) ([]*domain.ScanRecord, error) {
	return s.records.List(ctx)
}

// DeleteRecord removes a committed scan and its photo, if any.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.photos.Delete(ctx, id); err != nil && !errors.Is(err, photostore.ErrNotFound) {
		slog.Warn("failed to delete scan photo", "scan_id", id, "error", err)
	}
	return nil
}

// AttachReport generates the deep expertise report for a record and caches
// it. A report already present is returned without a new extraction call.
func (s *Service) AttachReport(ctx context.Context, id string) (string, error) {
	rec, err := s.Record(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.AnalysisReport != "" {
		return rec.AnalysisReport, nil
	}

	report, err := s.intel.ExpertiseReport(ctx, rec.Analysis.VIN)
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}
	if err := s.records.SetReport(ctx, id, report); err != nil {
		return "", err
	}
	return report, nil
}

// AttachMarketValue estimates the market value range for a record and caches
// it. An estimate already present is returned without a new call.
func (s *Service) AttachMarketValue(ctx context.Context, id string) (*ai.ValueEstimate, error) {
	rec, err := s.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Analysis.MarketValueMax > 0 {
		return &ai.ValueEstimate{
			Min:           rec.Analysis.MarketValueMin,
			Max:           rec.Analysis.MarketValueMax,
			Justification: rec.Analysis.MarketValueJustification,
		}, nil
	}

	est, err := s.intel.EstimateValue(ctx, rec.Analysis)
	if err != nil {
		return nil, fmt.Errorf("value estimation failed: %w", err)
	}
	if err := s.records.SetMarketValue(ctx, id, est.Min, est.Max, est.Justification); err != nil {
		return nil, err
	}
	return est, nil
}

// chatUnavailableReply is what the operator sees when the chat backend is
// down; the conversation degrades instead of erroring.
const chatUnavailableReply = "Service de chat temporairement indisponible."

// Chat forwards one expert chat turn.
func (s *Service) Chat(ctx context.Context, history []domain.ChatMessage, message string) (string, error) {
	reply, err := s.intel.Chat(ctx, history, message)
	if err != nil {
		slog.Warn("chat service unavailable", "error", err)
		return chatUnavailableReply, nil
	}
	return reply, nil
}

// Stats summarizes the inventory for the dashboard.
type Stats struct {
	TotalScans    int            `json:"totalScans"`
	ScansToday    int            `json:"scansToday"`
	ScansMonth    int            `json:"scansMonth"`
	MonthlyTarget int            `json:"monthlyTarget"`
	ByLocation    map[string]int `json:"byLocation"`
	ByFuel        map[string]int `json:"byFuel"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	records, err := s.records.List(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Load(ctx)
	if err != nil {
		slog.Warn("settings unreadable for stats, using defaults", "error", err)
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := &Stats{
		TotalScans:    len(records),
		MonthlyTarget: settings.MonthlyTarget,
		ByLocation:    make(map[string]int),
		ByFuel:        make(map[string]int),
	}
	for _, rec := range records {
		if !rec.Timestamp.Before(dayStart) {
			stats.ScansToday++
		}
		if !rec.Timestamp.Before(monthStart) {
			stats.ScansMonth++
		}
		stats.ByLocation[rec.LocationName]++
		stats.ByFuel[string(rec.Analysis.FuelType)]++
	}
	return stats, nil
}

func (d *Draft) clone() *Draft {
	c := *d
	return &c
}

// pick prefers a non-empty refined value over the current one.
func pick(refined, current string) string {
	if v := strings.TrimSpace(refined); v != "" {
		return v
	}
	return current
}

func orPlaceholder(v, placeholder string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return placeholder
}

package scan

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoubbns/vinscan/internal/ai"
	"github.com/ayoubbns/vinscan/internal/db"
	"github.com/ayoubbns/vinscan/internal/domain"
	"github.com/ayoubbns/vinscan/internal/photostore"
	"github.com/ayoubbns/vinscan/internal/photostore/local"
	"github.com/ayoubbns/vinscan/internal/store"
)

// stubIntel scripts every extraction call. Delays honor context cancellation
// so timeout behavior can be exercised.
type stubIntel struct {
	critical    *ai.Extraction
	criticalErr error

	refined     *ai.Extraction
	refineErr   error
	refineDelay time.Duration
	refineCalls atomic.Int32

	decoded   *ai.Extraction
	decodeErr error

	report      string
	reportCalls atomic.Int32

	estimate   *ai.ValueEstimate
	valueCalls atomic.Int32

	chatReply string
	chatErr   error
}

func (s *stubIntel) CriticalScan(ctx context.Context, image []byte, mimeType string, mode domain.ScanMode) (*ai.Extraction, error) {
	return s.critical, s.criticalErr
}

func (s *stubIntel) RefineDetails(ctx context.Context, image []byte, mimeType string, brand string) (*ai.Extraction, error) {
	s.refineCalls.Add(1)
	if s.refineDelay > 0 {
		select {
		case <-time.After(s.refineDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.refined, s.refineErr
}

func (s *stubIntel) DecodeVIN(ctx context.Context, vin string) (*ai.Extraction, error) {
	return s.decoded, s.decodeErr
}

func (s *stubIntel) ExpertiseReport(ctx context.Context, vin string) (string, error) {
	s.reportCalls.Add(1)
	return s.report, nil
}

func (s *stubIntel) EstimateValue(ctx context.Context, analysis domain.VehicleAnalysis) (*ai.ValueEstimate, error) {
	s.valueCalls.Add(1)
	return s.estimate, nil
}

func (s *stubIntel) Chat(ctx context.Context, history []domain.ChatMessage, message string) (string, error) {
	return s.chatReply, s.chatErr
}

type testEnv struct {
	svc      *Service
	records  *store.ScanStore
	settings *store.SettingsStore
	photos   photostore.PhotoStore
}

func newTestEnv(t *testing.T, intel ai.VehicleIntel, savePhotos bool) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	photos, err := local.NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	records := store.NewScanStore(database)
	settings := store.NewSettingsStore(database)
	svc := NewService(intel, records, settings, store.NewLocationStore(database), photos, savePhotos)

	return &testEnv{svc: svc, records: records, settings: settings, photos: photos}
}

func testOperator() *domain.Operator {
	return &domain.Operator{
		ID: "op-1", Username: "agent1", Name: "Agent Un", Role: domain.RoleAgent,
		Permissions: domain.DefaultPermissions(domain.RoleAgent),
	}
}

// seedLocationID is inserted by the migrations.
const seedLocationID = "default-1"

func TestStartImageScan_Placeholders(t *testing.T) {
	intel := &stubIntel{
		critical: &ai.Extraction{
			VIN:                "VF1RFB00353267871",
			Brand:              "RENAULT",
			DeductionReasoning: "WMI VF1 = Renault France",
		},
		refineDelay: time.Hour,
	}
	env := newTestEnv(t, intel, false)
	env.svc.refineTimeout = 100 * time.Millisecond

	d, err := env.svc.StartImageScan(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)

	assert.True(t, d.Refining)
	assert.Equal(t, "VF1RFB00353267871", d.Analysis.VIN)
	assert.Equal(t, "RENAULT", d.Analysis.Brand)
	assert.Equal(t, PlaceholderPending, d.Analysis.Model)
	assert.Equal(t, PlaceholderPending, d.Analysis.Motorization)
	assert.Equal(t, PlaceholderEmpty, d.Analysis.YearOfManufacture)
	assert.Equal(t, PlaceholderEmpty, d.Analysis.Color)
	assert.Equal(t, domain.FuelUnknown, d.Analysis.FuelType)
}

func TestStartImageScan_UnknownBrand(t *testing.T) {
	intel := &stubIntel{critical: &ai.Extraction{VIN: "ABC12"}}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartImageScan(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderBrand, d.Analysis.Brand)
}

func TestStartImageScan_CriticalFailureIsTerminal(t *testing.T) {
	intel := &stubIntel{criticalErr: errors.New("boom")}
	env := newTestEnv(t, intel, false)

	_, err := env.svc.StartImageScan(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", domain.ScanModeVIN)
	assert.Error(t, err)
}

func TestRefinementMergesNonEmptyFields(t *testing.T) {
	intel := &stubIntel{
		critical: &ai.Extraction{VIN: "VF1RFB00353267871", Brand: "RENAULT"},
		refined: &ai.Extraction{
			Model:        "CLIO V",
			Motorization: "1.5 dCi 115",
			FuelType:     "Diesel",
			Color:        "Gris",
		},
	}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartImageScan(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := env.svc.Draft(d.ID)
		return err == nil && !cur.Refining
	}, 2*time.Second, 10*time.Millisecond)

	cur, err := env.svc.Draft(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "CLIO V", cur.Analysis.Model)
	assert.Equal(t, "1.5 dCi 115", cur.Analysis.Motorization)
	assert.Equal(t, domain.FuelDiesel, cur.Analysis.FuelType)
	assert.Equal(t, "Gris", cur.Analysis.Color)
	assert.Equal(t, "RENAULT", cur.Analysis.Brand)
}

func TestRefinementFailureKeepsCriticalValues(t *testing.T) {
	intel := &stubIntel{
		critical:  &ai.Extraction{VIN: "VF1RFB00353267871", Brand: "RENAULT"},
		refineErr: errors.New("boom"),
	}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartImageScan(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := env.svc.Draft(d.ID)
		return err == nil && !cur.Refining
	}, 2*time.Second, 10*time.Millisecond)

	cur, err := env.svc.Draft(d.ID)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderPending, cur.Analysis.Model)
	assert.Equal(t, "RENAULT", cur.Analysis.Brand)
}

func TestRefinementTimeoutCancelsCall(t *testing.T) {
	intel := &stubIntel{
		critical:    &ai.Extraction{VIN: "VF1RFB00353267871", Brand: "RENAULT"},
		refined:     &ai.Extraction{Model: "CLIO V"},
		refineDelay: time.Hour,
	}
	env := newTestEnv(t, intel, false)
	env.svc.refineTimeout = 50 * time.Millisecond

	d, err := env.svc.StartImageScan(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := env.svc.Draft(d.ID)
		return err == nil && !cur.Refining
	}, 2*time.Second, 10*time.Millisecond)

	cur, err := env.svc.Draft(d.ID)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderPending, cur.Analysis.Model)
	assert.EqualValues(t, 1, intel.refineCalls.Load())
}

func TestStartVINScan(t *testing.T) {
	intel := &stubIntel{
		decoded: &ai.Extraction{
			Brand:        "RENAULT",
			Model:        "CLIO V",
			Motorization: "1.5 dCi",
			FuelType:     "Diesel",
		},
	}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartVINScan(context.Background(), "vf1-rfb003 53267871")
	require.NoError(t, err)

	assert.False(t, d.Refining)
	assert.Equal(t, "VF1RFB00353267871", d.Analysis.VIN)
	assert.Equal(t, "RENAULT", d.Analysis.Brand)
	assert.Equal(t, "CLIO V", d.Analysis.Model)
	assert.Equal(t, domain.FuelDiesel, d.Analysis.FuelType)
	assert.EqualValues(t, 0, intel.refineCalls.Load())
}

func TestStartVINScan_TooShort(t *testing.T) {
	env := newTestEnv(t, &stubIntel{}, false)

	_, err := env.svc.StartVINScan(context.Background(), "AB-1")
	assert.ErrorIs(t, err, ErrInvalidVIN)
}

func TestUpdateAndDiscardDraft(t *testing.T) {
	intel := &stubIntel{decoded: &ai.Extraction{Brand: "RENAULT"}}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartVINScan(context.Background(), "VF1RFB00353267871")
	require.NoError(t, err)

	edited := d.Analysis
	edited.InventoryNotes = "rayure aile avant droite"
	cur, err := env.svc.UpdateDraft(d.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, "rayure aile avant droite", cur.Analysis.InventoryNotes)

	require.NoError(t, env.svc.Discard(d.ID))
	_, err = env.svc.Draft(d.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)
	assert.ErrorIs(t, env.svc.Discard(d.ID), ErrDraftNotFound)
}

func commitDraft(t *testing.T, env *testEnv, vin string) (*domain.ScanRecord, bool) {
	t.Helper()
	d, err := env.svc.StartVINScan(context.Background(), vin)
	require.NoError(t, err)
	rec, dup, err := env.svc.Commit(context.Background(), d.ID, testOperator(), seedLocationID)
	require.NoError(t, err)
	return rec, dup
}

func TestCommit(t *testing.T) {
	intel := &stubIntel{decoded: &ai.Extraction{Brand: "RENAULT", Model: "CLIO V"}}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartVINScan(context.Background(), "VF1RFB00353267871")
	require.NoError(t, err)

	rec, dup, err := env.svc.Commit(context.Background(), d.ID, testOperator(), seedLocationID)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Agent Un", rec.OperatorName)
	assert.Equal(t, "SIÈGE / DÉPÔT", rec.LocationName)
	assert.GreaterOrEqual(t, rec.ScanDurationMS, int64(0))

	// draft is consumed
	_, err = env.svc.Draft(d.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	saved, err := env.records.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "VF1RFB00353267871", saved.Analysis.VIN)
}

func TestCommit_UnknownLocation(t *testing.T) {
	intel := &stubIntel{decoded: &ai.Extraction{Brand: "RENAULT"}}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartVINScan(context.Background(), "VF1RFB00353267871")
	require.NoError(t, err)

	_, _, err = env.svc.Commit(context.Background(), d.ID, testOperator(), "nope")
	assert.ErrorIs(t, err, ErrUnknownLocation)
}

func TestCommit_DuplicateWarn(t *testing.T) {
	intel := &stubIntel{decoded: &ai.Extraction{Brand: "RENAULT"}}
	env := newTestEnv(t, intel, false)

	_, dup := commitDraft(t, env, "VF1RFB00353267871")
	assert.False(t, dup)

	rec, dup := commitDraft(t, env, "VF1RFB00353267871")
	assert.True(t, dup)
	assert.NotEmpty(t, rec.ID)

	all, err := env.records.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCommit_DuplicateBlock(t *testing.T) {
	intel := &stubIntel{decoded: &ai.Extraction{Brand: "RENAULT"}}
	env := newTestEnv(t, intel, false)

	settings := domain.DefaultSettings()
	settings.DuplicatePolicy = domain.DuplicateBlock
	require.NoError(t, env.settings.Save(context.Background(), settings))

	commitDraft(t, env, "VF1RFB00353267871")

	d, err := env.svc.StartVINScan(context.Background(), "VF1RFB00353267871")
	require.NoError(t, err)
	_, _, err = env.svc.Commit(context.Background(), d.ID, testOperator(), seedLocationID)
	assert.ErrorIs(t, err, ErrDuplicate)

	all, err := env.records.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCommit_PriorOutsideWindowIsNotDuplicate(t *testing.T) {
	intel := &stubIntel{decoded: &ai.Extraction{Brand: "RENAULT"}}
	env := newTestEnv(t, intel, false)

	old := &domain.ScanRecord{
		ID:        "old-1",
		Timestamp: time.Now().Add(-25 * time.Hour),
		Analysis:  domain.VehicleAnalysis{VIN: "VF1RFB00353267871"},
	}
	require.NoError(t, env.records.Insert(context.Background(), old))

	_, dup := commitDraft(t, env, "VF1RFB00353267871")
	assert.False(t, dup)
}

func commitImageDraft(t *testing.T, env *testEnv) (*domain.ScanRecord, bool) {
	t.Helper()
	d, err := env.svc.StartImageScan(context.Background(), []byte("fake-jpeg"), "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		cur, err := env.svc.Draft(d.ID)
		return err == nil && !cur.Refining
	}, 2*time.Second, 10*time.Millisecond)
	rec, dup, err := env.svc.Commit(context.Background(), d.ID, testOperator(), seedLocationID)
	require.NoError(t, err)
	return rec, dup
}

func TestCommit_DuplicateByBrandModelWithoutVIN(t *testing.T) {
	intel := &stubIntel{
		critical: &ai.Extraction{Brand: "RENAULT", Model: "CLIO V"},
	}
	env := newTestEnv(t, intel, false)

	_, dup := commitImageDraft(t, env)
	assert.False(t, dup)

	// unreadable VIN both times, same brand and model inside the window
	_, dup = commitImageDraft(t, env)
	assert.True(t, dup)
}

func TestCommit_PlaceholdersAreNotDuplicates(t *testing.T) {
	intel := &stubIntel{critical: &ai.Extraction{}}
	env := newTestEnv(t, intel, false)

	_, dup := commitImageDraft(t, env)
	assert.False(t, dup)

	_, dup = commitImageDraft(t, env)
	assert.False(t, dup)
}

func TestCommit_SavesPhotoWhenEnabled(t *testing.T) {
	intel := &stubIntel{critical: &ai.Extraction{VIN: "VF1RFB00353267871", Brand: "RENAULT"}}
	env := newTestEnv(t, intel, true)

	d, err := env.svc.StartImageScan(context.Background(), []byte("fake-jpeg"), "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)

	rec, _, err := env.svc.Commit(context.Background(), d.ID, testOperator(), seedLocationID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, rec.PhotoKey)

	rc, mime, err := env.photos.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "fake-jpeg", string(data))
	assert.Equal(t, "image/jpeg", mime)
}

func TestCommit_PhotoDisabledByDefault(t *testing.T) {
	intel := &stubIntel{critical: &ai.Extraction{VIN: "VF1RFB00353267871", Brand: "RENAULT"}}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartImageScan(context.Background(), []byte("fake-jpeg"), "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)

	rec, _, err := env.svc.Commit(context.Background(), d.ID, testOperator(), seedLocationID)
	require.NoError(t, err)
	assert.Empty(t, rec.PhotoKey)

	_, _, err = env.photos.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, photostore.ErrNotFound)
}

func TestDeleteRecord(t *testing.T) {
	intel := &stubIntel{critical: &ai.Extraction{VIN: "VF1RFB00353267871", Brand: "RENAULT"}}
	env := newTestEnv(t, intel, true)

	d, err := env.svc.StartImageScan(context.Background(), []byte("fake-jpeg"), "image/jpeg", domain.ScanModeVIN)
	require.NoError(t, err)
	rec, _, err := env.svc.Commit(context.Background(), d.ID, testOperator(), seedLocationID)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteRecord(context.Background(), rec.ID))

	_, err = env.svc.Record(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, _, err = env.photos.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, photostore.ErrNotFound)
}

func TestAttachReport_Caches(t *testing.T) {
	intel := &stubIntel{
		decoded: &ai.Extraction{Brand: "RENAULT"},
		report:  "RAPPORT D'EXPERTISE",
	}
	env := newTestEnv(t, intel, false)
	rec, _ := commitDraft(t, env, "VF1RFB00353267871")

	report, err := env.svc.AttachReport(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "RAPPORT D'EXPERTISE", report)

	report, err = env.svc.AttachReport(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "RAPPORT D'EXPERTISE", report)
	assert.EqualValues(t, 1, intel.reportCalls.Load())
}

func TestAttachMarketValue_Caches(t *testing.T) {
	intel := &stubIntel{
		decoded:  &ai.Extraction{Brand: "RENAULT"},
		estimate: &ai.ValueEstimate{Min: 120000, Max: 145000, Justification: "Cote marché"},
	}
	env := newTestEnv(t, intel, false)
	rec, _ := commitDraft(t, env, "VF1RFB00353267871")

	est, err := env.svc.AttachMarketValue(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), est.Min)

	est, err = env.svc.AttachMarketValue(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(145000), est.Max)
	assert.EqualValues(t, 1, intel.valueCalls.Load())
}

func TestStartVINScan_UnknownModelFallsBack(t *testing.T) {
	intel := &stubIntel{decoded: &ai.Extraction{Brand: "RENAULT"}}
	env := newTestEnv(t, intel, false)

	d, err := env.svc.StartVINScan(context.Background(), "VF1RFB00353267871")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderBrand, d.Analysis.Model)
}

func TestChat(t *testing.T) {
	intel := &stubIntel{chatReply: "La Clio V diesel est fiable."}
	env := newTestEnv(t, intel, false)

	reply, err := env.svc.Chat(context.Background(), nil, "Le diesel est-il fiable ?")
	require.NoError(t, err)
	assert.Equal(t, "La Clio V diesel est fiable.", reply)
}

func TestChat_FailureReturnsApology(t *testing.T) {
	intel := &stubIntel{chatErr: errors.New("boom")}
	env := newTestEnv(t, intel, false)

	reply, err := env.svc.Chat(context.Background(), nil, "Salut")
	require.NoError(t, err)
	assert.Equal(t, "Service de chat temporairement indisponible.", reply)
}

func TestStats(t *testing.T) {
	intel := &stubIntel{decoded: &ai.Extraction{Brand: "RENAULT", FuelType: "Diesel"}}
	env := newTestEnv(t, intel, false)

	commitDraft(t, env, "VF1RFB00353267871")
	commitDraft(t, env, "WDB12345678901234")

	stats, err := env.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalScans)
	assert.Equal(t, 2, stats.ScansToday)
	assert.Equal(t, 2, stats.ScansMonth)
	assert.Equal(t, 100, stats.MonthlyTarget)
	assert.Equal(t, 2, stats.ByLocation["SIÈGE / DÉPÔT"])
	assert.Equal(t, 2, stats.ByFuel["Diesel"])
}

func TestFindDuplicate(t *testing.T) {
	priors := []*domain.ScanRecord{
		{ID: "a", Analysis: domain.VehicleAnalysis{VIN: "VF1RFB00353267871", Brand: "RENAULT", Model: "CLIO V"}},
		{ID: "b", Analysis: domain.VehicleAnalysis{VIN: PlaceholderEmpty}},
		{ID: "c", Analysis: domain.VehicleAnalysis{Brand: "DACIA", Model: "LOGAN"}},
	}

	byVIN := domain.VehicleAnalysis{VIN: "VF1RFB00353267871"}
	assert.NotNil(t, FindDuplicate(byVIN, priors))
	assert.Nil(t, FindDuplicate(domain.VehicleAnalysis{VIN: "WDB12345678901234"}, priors))
	assert.Nil(t, FindDuplicate(domain.VehicleAnalysis{VIN: PlaceholderEmpty}, priors))

	// without a VIN, brand+model is the fallback key
	assert.NotNil(t, FindDuplicate(domain.VehicleAnalysis{Brand: "DACIA", Model: "LOGAN"}, priors))
	assert.Nil(t, FindDuplicate(domain.VehicleAnalysis{Brand: "DACIA", Model: "SANDERO"}, priors))

	// placeholders never match anything
	assert.Nil(t, FindDuplicate(domain.VehicleAnalysis{}, priors))
	assert.Nil(t, FindDuplicate(domain.VehicleAnalysis{Brand: PlaceholderBrand, Model: PlaceholderPending}, priors))
	assert.Nil(t, FindDuplicate(domain.VehicleAnalysis{Brand: "DACIA", Model: PlaceholderPending}, priors))
}

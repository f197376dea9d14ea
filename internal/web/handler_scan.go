package web

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayoubbns/vinscan/internal/domain"
	"github.com/ayoubbns/vinscan/internal/export"
)

const maxScanBody = 20 * 1024 * 1024 // 20 MB

// allowedImageTypes is the set of MIME types accepted for captured photos.
// net/http.DetectContentType covers JPEG, PNG, and GIF; WebP is sniffed
// separately because the stdlib sniffer has no WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// decodeImagePayload accepts either a bare base64 string or a data URL and
// returns the raw bytes.
func decodeImagePayload(payload string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		if _, b64, found := strings.Cut(rest, ";base64,"); found {
			payload = b64
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
}

type imageScanRequest struct {
	Image string `json:"image" validate:"required"`
	Mode  string `json:"mode" validate:"omitempty,oneof=vin carte_grise"`
}

func (s *Server) handleImageScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScanBody)

	var req imageScanRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	image, err := decodeImagePayload(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is not valid base64")
		return
	}
	mime, ok := allowedImageMIME(image)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported image format")
		return
	}

	mode := domain.ScanMode(req.Mode)
	if mode == "" {
		mode = domain.ScanModeVIN
	}

	draft, err := s.scans.StartImageScan(r.Context(), image, mime, mode)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

type vinScanRequest struct {
	VIN string `json:"vin" validate:"required"`
}

func (s *Server) handleVINScan(w http.ResponseWriter, r *http.Request) {
	var req vinScanRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	draft, err := s.scans.StartVINScan(r.Context(), req.VIN)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.scans.Draft(chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

type updateDraftRequest struct {
	Analysis domain.VehicleAnalysis `json:"analysis"`
}

func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req updateDraftRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	draft, err := s.scans.UpdateDraft(chi.URLParam(r, "id"), req.Analysis)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.scans.Discard(chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commitRequest struct {
	LocationID string `json:"locationId" validate:"required"`
}

type commitResponse struct {
	Record    *domain.ScanRecord `json:"record"`
	Duplicate bool               `json:"duplicate"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	rec, duplicate, err := s.scans.Commit(r.Context(), chi.URLParam(r, "id"), operatorFrom(r.Context()), req.LocationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commitResponse{Record: rec, Duplicate: duplicate})
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	records, err := s.scans.Records(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scans.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	if err := s.scans.DeleteRecord(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetPhoto streams the stored photo, or answers 204 when the record
// exists without one (the default, photo persistence being opt-in).
func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scans.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	reader, mime, err := s.photos.Get(r.Context(), rec.ID)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.logger.Error("failed to close photo reader", "error", err)
		}
	}()

	w.Header().Set("Content-Type", mime)
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("failed to write photo", "scan_id", rec.ID, "error", err)
	}
}

func (s *Server) handleExportScans(w http.ResponseWriter, r *http.Request) {
	records, err := s.scans.Records(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(time.Now())+`"`)
	if err := export.WriteCSV(w, records); err != nil {
		s.logger.Error("failed to write csv export", "error", err)
	}
}

type reportResponse struct {
	Report string `json:"report"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.scans.AttachReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: report})
}

type marketValueResponse struct {
	MarketValueMin           int64  `json:"marketValueMin"`
	MarketValueMax           int64  `json:"marketValueMax"`
	MarketValueJustification string `json:"marketValueJustification"`
}

func (s *Server) handleMarketValue(w http.ResponseWriter, r *http.Request) {
	est, err := s.scans.AttachMarketValue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marketValueResponse{
		MarketValueMin:           est.Min,
		MarketValueMax:           est.Max,
		MarketValueJustification: est.Justification,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.scans.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type chatRequest struct {
	History []domain.ChatMessage `json:"history" validate:"dive"`
	Message string               `json:"message" validate:"required"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	reply, err := s.scans.Chat(r.Context(), req.History, req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

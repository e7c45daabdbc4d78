// Package review serves the extraction log for reviewing and annotating attempts.
// Golden samples marked here can be exported as regression fixtures.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"boardingpass_parser/internal/storage"
)

// Store is the subset of a SQL extraction log the review endpoints need.
type Store interface {
	storage.Getter
	List(ctx context.Context, p storage.QueryParams) ([]*storage.Record, error)
	GetStats(ctx context.Context) (*storage.Stats, error)
	SetGolden(ctx context.Context, id int64, golden bool, annotation string) error
}

// Handler provides the review API.
type Handler struct {
	db Store
}

// NewHandler creates a review handler over db.
func NewHandler(db Store) *Handler {
	return &Handler{db: db}
}

// Routes returns the review routes for mounting under a prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/extractions", h.handleList)
	r.Post("/extractions/{id}/golden", h.handleSetGolden)
	r.Get("/stats", h.handleStats)
	r.Get("/export/golden", h.handleExportGolden)
	return r
}

// APIRecord is a stored attempt with its parsed outcome expanded.
type APIRecord struct {
	*storage.Record
	Parsed map[string]any `json:"parsed,omitempty"`
}

func recordToAPI(r *storage.Record) APIRecord {
	api := APIRecord{Record: r}
	if r.ParsedJSON != "" {
		_ = json.Unmarshal([]byte(r.ParsedJSON), &api.Parsed)
	}
	return api
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters.
	q := r.URL.Query()
	params := storage.QueryParams{
		Flight:       q.Get("flight"),
		MissingField: q.Get("missing"),
		FullText:     q.Get("search"),
		GoldenOnly:   q.Get("golden") == "true",
		OrderDesc:    q.Get("desc") != "false",
	}
	switch q.Get("found") {
	case "true":
		found := true
		params.Found = &found
	case "false":
		found := false
		params.Found = &found
	}

	// Pagination.
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		params.Limit = limit
	} else {
		params.Limit = 50
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		params.Offset = offset
	}

	records, err := h.db.List(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "List failed")
		return
	}

	result := make([]APIRecord, 0, len(records))
	for _, rec := range records {
		result = append(result, recordToAPI(rec))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSetGolden(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid extraction ID")
		return
	}

	var req struct {
		Golden     bool   `json:"golden"`
		Annotation string `json:"annotation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	err = h.db.SetGolden(r.Context(), id, req.Golden, req.Annotation)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Extraction not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Update failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GoldenExport is one golden sample: the recognised text and the outcome it must produce.
type GoldenExport struct {
	ID         int64          `json:"id"`
	RawText    string         `json:"raw_text"`
	Expected   map[string]any `json:"expected"`
	Annotation string         `json:"annotation,omitempty"`
}

func (h *Handler) handleExportGolden(w http.ResponseWriter, r *http.Request) {
	records, err := h.db.List(r.Context(), storage.QueryParams{GoldenOnly: true, Limit: 100000})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	exports := make([]GoldenExport, 0, len(records))
	for _, rec := range records {
		export := GoldenExport{
			ID:         rec.ID,
			RawText:    rec.RawText,
			Annotation: rec.Annotation,
		}
		_ = json.Unmarshal([]byte(rec.ParsedJSON), &export.Expected)
		exports = append(exports, export)
	}

	w.Header().Set("Content-Disposition", "attachment; filename=golden_passes.json")
	writeJSON(w, http.StatusOK, exports)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

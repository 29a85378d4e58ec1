// Package api exposes the event ingest, directory and operations endpoints.
// Transport is an external concern to the synchronization core: these
// handlers only translate HTTP into in-process Dispatch/Submit calls.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/caresync/platform/internal/deadletter"
	"github.com/caresync/platform/internal/journal"
	"github.com/caresync/platform/internal/shared/errors"
	"github.com/caresync/platform/internal/store"
	"github.com/caresync/platform/internal/sync"
)

// Handler provides HTTP handlers over the synchronization core
type Handler struct {
	service    *sync.Service
	dispatcher *sync.Dispatcher
	reconciler *sync.Reconciler
	documents  store.DocumentStore
	analytics  store.AnalyticsStore
	cache      store.CacheStore

	// Optional operational collaborators
	journal    *journal.Journal
	deadletter *deadletter.Stream
}

// NewHandler creates an API handler
func NewHandler(
	service *sync.Service,
	dispatcher *sync.Dispatcher,
	reconciler *sync.Reconciler,
	documents store.DocumentStore,
	analytics store.AnalyticsStore,
	cache store.CacheStore,
) *Handler {
	return &Handler{
		service:    service,
		dispatcher: dispatcher,
		reconciler: reconciler,
		documents:  documents,
		analytics:  analytics,
		cache:      cache,
	}
}

// WithJournal attaches the outcome journal for reporting endpoints
func (h *Handler) WithJournal(j *journal.Journal) *Handler {
	h.journal = j
	return h
}

// WithDeadLetter attaches the dead-letter stream for replay endpoints
func (h *Handler) WithDeadLetter(s *deadletter.Stream) *Handler {
	h.deadletter = s
	return h
}

// Routes registers the API routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/events", func(r chi.Router) {
		r.Post("/vitals", h.SubmitVital)
		r.Post("/relationships", h.SubmitRelationship)
	})

	r.Route("/patients", func(r chi.Router) {
		r.Get("/", h.ListPatients)
		r.Put("/{patientID}", h.UpsertPatient)
		r.Get("/{patientID}/analytics", h.PatientAnalytics)
		r.Get("/{patientID}/alert", h.PatientAlert)
	})

	r.Put("/doctors/{doctorID}", h.UpsertDoctor)
	r.Get("/alerts", h.ListAlerts)

	return r
}

// AdminRoutes registers the operational routes, mounted behind auth in
// production.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/reconcile", h.Reconcile)
	r.Get("/failures", h.RecentFailures)
	r.Post("/deadletter/replay", h.ReplayDeadLetter)
	r.Get("/stats", h.Stats)

	return r
}

// --- Event ingest ---

type vitalRequest struct {
	PatientID string  `json:"patient_id"`
	Region    string  `json:"region"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	// Wait makes the call synchronous: the response carries the full
	// outcome instead of an accepted acknowledgement.
	Wait bool `json:"wait,omitempty"`
}

// SubmitVital ingests one vital-sign reading
func (h *Handler) SubmitVital(w http.ResponseWriter, r *http.Request) {
	var req vitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	ev := sync.NewVitalReading(req.PatientID, req.Region, req.Metric, req.Value)

	if req.Wait {
		outcome := h.dispatcher.Dispatch(r.Context(), ev)
		writeJSON(w, statusFor(outcome), outcome)
		return
	}

	if err := h.service.Submit(r.Context(), ev); err != nil {
		writeError(w, errors.Wrap(err, "submit failed"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": ev.EventID()})
}

type relationshipRequest struct {
	DoctorID    string `json:"doctor_id"`
	PatientID   string `json:"patient_id"`
	DoctorName  string `json:"doctor_name"`
	PatientName string `json:"patient_name"`
	Wait        bool   `json:"wait,omitempty"`
}

// SubmitRelationship ingests one care-relationship change
func (h *Handler) SubmitRelationship(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	ev := sync.NewRelationshipChange(req.DoctorID, req.PatientID, req.DoctorName, req.PatientName)

	if req.Wait {
		outcome := h.dispatcher.Dispatch(r.Context(), ev)
		writeJSON(w, statusFor(outcome), outcome)
		return
	}

	if err := h.service.Submit(r.Context(), ev); err != nil {
		writeError(w, errors.Wrap(err, "submit failed"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": ev.EventID()})
}

// --- Directory ---

// ListPatients lists patients, optionally filtered by region
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	var (
		patients []store.PatientRecord
		err      error
	)
	if region := r.URL.Query().Get("region"); region != "" {
		patients, err = h.documents.FindPatientsByRegion(r.Context(), region)
	} else {
		patients, err = h.documents.FindAllPatients(r.Context())
	}
	if err != nil {
		writeError(w, errors.Wrap(err, "list patients failed"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  patients,
		"total": len(patients),
	})
}

type patientRequest struct {
	Name           string   `json:"name"`
	Region         string   `json:"region"`
	MedicalHistory []string `json:"medical_history"`
	DoctorID       string   `json:"doctor_id,omitempty"`
	DoctorName     string   `json:"doctor_name,omitempty"`
}

// UpsertPatient writes the authoritative patient record and, when a doctor
// is referenced, mirrors the relationship into the graph.
func (h *Handler) UpsertPatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")

	var req patientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Name == "" {
		writeError(w, errors.Validation("patient name is required", map[string]string{"name": "required"}))
		return
	}

	record := store.PatientRecord{
		ID:             id,
		Name:           req.Name,
		Region:         req.Region,
		MedicalHistory: req.MedicalHistory,
		DoctorID:       req.DoctorID,
	}
	if err := h.documents.UpsertPatient(r.Context(), record); err != nil {
		writeError(w, errors.Wrap(err, "upsert patient failed"))
		return
	}

	// The graph mirror is derived from the document record, one way only.
	if req.DoctorID != "" {
		ev := sync.NewRelationshipChange(req.DoctorID, id, req.DoctorName, req.Name)
		if err := h.service.Submit(r.Context(), ev); err != nil {
			writeError(w, errors.Wrap(err, "relationship submit failed"))
			return
		}
	}

	writeJSON(w, http.StatusOK, record)
}

type doctorRequest struct {
	Name string `json:"name"`
}

// UpsertDoctor writes the authoritative doctor record
func (h *Handler) UpsertDoctor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "doctorID")

	var req doctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Name == "" {
		writeError(w, errors.Validation("doctor name is required", map[string]string{"name": "required"}))
		return
	}

	record := store.DoctorRecord{ID: id, Name: req.Name}
	if err := h.documents.UpsertDoctor(r.Context(), record); err != nil {
		writeError(w, errors.Wrap(err, "upsert doctor failed"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// --- Telemetry reads ---

// PatientAnalytics returns the latest analytics rows for one patient
func (h *Handler) PatientAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.analytics.QueryRecent(r.Context(), id, limit)
	if err != nil {
		writeError(w, errors.Wrap(err, "analytics query failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  rows,
		"total": len(rows),
	})
}

// PatientAlert returns the active alert flag for one patient, if any
func (h *Handler) PatientAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patientID")

	message, ok, err := h.cache.Get(r.Context(), sync.AlertKey(id))
	if err != nil {
		writeError(w, errors.Wrap(err, "alert lookup failed"))
		return
	}
	if !ok {
		writeError(w, errors.NotFound("alert", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"patient_id": id,
		"message":    message,
	})
}

// ListAlerts returns every active alert flag
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	keys, err := h.cache.Keys(r.Context(), sync.AlertKey("*"))
	if err != nil {
		writeError(w, errors.Wrap(err, "alert scan failed"))
		return
	}

	alerts := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		message, ok, err := h.cache.Get(r.Context(), key)
		if err != nil {
			writeError(w, errors.Wrap(err, "alert lookup failed"))
			return
		}
		if !ok {
			// Expired between the scan and the read.
			continue
		}
		alerts = append(alerts, map[string]string{
			"key":     key,
			"message": message,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  alerts,
		"total": len(alerts),
	})
}

// --- Operations ---

// Reconcile runs the directory reconciler, optionally region-filtered
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")

	summary, err := h.reconciler.Run(r.Context(), region)
	if err != nil {
		writeError(w, errors.Wrap(err, "reconciliation failed"))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// RecentFailures returns the latest non-committed outcomes from the journal
func (h *Handler) RecentFailures(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, errors.NotFound("journal", ""))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.journal.RecentFailures(r.Context(), limit)
	if err != nil {
		writeError(w, errors.Wrap(err, "journal query failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  rows,
		"total": len(rows),
	})
}

type replayRequest struct {
	From uint64 `json:"from"`
	Max  int    `json:"max"`
}

// ReplayDeadLetter re-dispatches dead-lettered events
func (h *Handler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.deadletter == nil {
		writeError(w, errors.NotFound("dead-letter stream", ""))
		return
	}

	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	report, err := h.deadletter.Replay(r.Context(), h.dispatcher, req.From, req.Max)
	if err != nil {
		writeError(w, errors.Wrap(err, "replay failed"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Stats returns the service's cumulative counters
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Stats())
}

func statusFor(o sync.Outcome) int {
	switch o.Status {
	case sync.OutcomeCommitted:
		return http.StatusOK
	case sync.OutcomeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/billfeed/internal/api/middleware"
	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/ingest"
	"github.com/dvloznov/billfeed/internal/jobs"
	"github.com/dvloznov/billfeed/internal/lifecycle"
	"github.com/dvloznov/billfeed/internal/store"
)

// EventsHandler handles capture ingress endpoints.
type EventsHandler struct {
	pipeline  *ingest.Pipeline
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(pipeline *ingest.Pipeline, publisher jobs.Publisher, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		pipeline:  pipeline,
		publisher: publisher,
		log:       log,
	}
}

// SubmitEvent handles POST /api/events. The event runs through the
// pipeline synchronously and the caller gets the verdict.
func (h *EventsHandler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var sub ingest.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sub.FromReplay = false

	rec, res, err := h.pipeline.Submit(r.Context(), sub)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"bill":  rec,
		"dedup": res,
	})
}

// EnqueueEvent handles POST /api/events/async. The event is queued and
// the caller gets a job id to poll.
func (h *EventsHandler) EnqueueEvent(w http.ResponseWriter, r *http.Request) {
	var sub ingest.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := ingest.NormalizeSubmission(sub)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &jobs.IngestEventJob{Event: event}
	if err := h.publisher.PublishIngestEvent(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ingest job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue event")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("event_id", event.EventID).Msg("Ingest job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"event_id": event.EventID,
		"status":   string(job.Status),
	})
}

// ReplayEvent handles POST /api/events/replay. Replayed events keep
// their archived event id, skip the AI fallback and are not re-archived.
func (h *EventsHandler) ReplayEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if event.EventID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "event_id is required")
		return
	}

	rec, res, err := h.pipeline.Process(r.Context(), event, true)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"bill":  rec,
		"dedup": res,
	})
}

func (h *EventsHandler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSource):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoMatch):
		middleware.WriteError(w, http.StatusUnprocessableEntity, "no classifier matched the payload")
	case errors.Is(err, domain.ErrPersistence):
		h.log.Error().Err(err).Msg("Storage failure during ingestion")
		middleware.WriteError(w, http.StatusInternalServerError, "storage failure")
	default:
		h.log.Error().Err(err).Msg("Ingestion failed")
		middleware.WriteError(w, http.StatusInternalServerError, "ingestion failed")
	}
}

// BillsHandler handles bill record endpoints.
type BillsHandler struct {
	store   store.BillStore
	control *lifecycle.Controller
	log     zerolog.Logger
}

// NewBillsHandler creates a new bills handler.
func NewBillsHandler(st store.BillStore, control *lifecycle.Controller, log zerolog.Logger) *BillsHandler {
	return &BillsHandler{
		store:   st,
		control: control,
		log:     log,
	}
}

// ListBills handles GET /api/bills
func (h *BillsHandler) ListBills(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.BillFilter{
		State:   domain.BillState(query.Get("state")),
		EventID: query.Get("event_id"),
	}

	if groupStr := query.Get("group_id"); groupStr != "" {
		if group, err := strconv.ParseInt(groupStr, 10, 64); err == nil {
			filter.GroupID = group
		}
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	bills, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list bills")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list bills")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bills": bills,
		"count": len(bills),
	})
}

// GetBill handles GET /api/bills/{id}
func (h *BillsHandler) GetBill(w http.ResponseWriter, r *http.Request, id int64) {
	bill, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Bill not found")
			return
		}
		h.log.Error().Err(err).Int64("bill_id", id).Msg("Failed to get bill")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get bill")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, bill)
}

// ConfirmBill handles POST /api/bills/{id}/confirm. An empty body
// confirms as-is; a candidate body applies the user's edits.
func (h *BillsHandler) ConfirmBill(w http.ResponseWriter, r *http.Request, id int64) {
	var edits *domain.BillCandidate
	if r.ContentLength > 0 {
		edits = &domain.BillCandidate{}
		if err := json.NewDecoder(r.Body).Decode(edits); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	bill, err := h.control.Confirm(r.Context(), id, edits)
	if err != nil {
		h.writeLifecycleError(w, id, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, bill)
}

// SyncBill handles POST /api/bills/{id}/sync, used by external book
// exporters to acknowledge a completed export.
func (h *BillsHandler) SyncBill(w http.ResponseWriter, r *http.Request, id int64) {
	bill, err := h.control.MarkSynced(r.Context(), id)
	if err != nil {
		h.writeLifecycleError(w, id, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, bill)
}

func (h *BillsHandler) writeLifecycleError(w http.ResponseWriter, id int64, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Bill not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Int64("bill_id", id).Msg("Lifecycle operation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Operation failed")
	}
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		EventID: query.Get("event_id"),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

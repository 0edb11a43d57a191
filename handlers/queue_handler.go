package handlers

import (
	"fmt"
	"net/http"

	"hospital-queue/internal/status"
	"hospital-queue/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

type QueueHandler struct {
	app          *pocketbase.PocketBase
	queueService *services.QueueService
}

func NewQueueHandler(app *pocketbase.PocketBase, queueService *services.QueueService) *QueueHandler {
	return &QueueHandler{
		app:          app,
		queueService: queueService,
	}
}

// JoinQueue - patient joins a doctor's queue
func (h *QueueHandler) JoinQueue(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		DoctorID      string `json:"doctor_id"`
		HealthSummary string `json:"health_summary"`
		ScheduledAt   string `json:"scheduled_at"`
		Notes         string `json:"notes"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.DoctorID == "" {
		return apiError(fmt.Errorf("doctor_id is required: %w", status.ErrValidation))
	}

	join := services.JoinRequest{
		DoctorID:      req.DoctorID,
		PatientID:     e.Auth.Id,
		PatientName:   e.Auth.GetString("name"),
		HealthSummary: req.HealthSummary,
		Notes:         req.Notes,
	}
	if req.ScheduledAt != "" {
		scheduled, err := types.ParseDateTime(req.ScheduledAt)
		if err != nil {
			return apis.NewBadRequestError("Invalid scheduled_at", err)
		}
		join.ScheduledAt = scheduled
	}

	entry, err := h.queueService.JoinQueue(e.Request.Context(), join)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"queue_id":               entry.ID,
		"token":                  entry.Token,
		"token_number":           entry.TokenNumber,
		"position":               entry.Position,
		"estimated_wait_minutes": entry.EstimatedWait,
	})
}

// GetQueueStatus - ordered queue plus doctor summary, public
func (h *QueueHandler) GetQueueStatus(e *core.RequestEvent) error {
	doctorID := e.Request.URL.Query().Get("doctor_id")
	if doctorID == "" {
		return apis.NewBadRequestError("Doctor ID required", nil)
	}

	entries, doctor, err := h.queueService.GetQueueStatus(e.Request.Context(), doctorID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"doctor": doctor,
		"queue":  entries,
		"total":  doctor.CurrentQueueCount,
	})
}

// GetMyStatus - the caller's current queue entry, with the lazy no-show
// check applied
func (h *QueueHandler) GetMyStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	entry, err := h.queueService.GetPatientStatus(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, entry)
}

// GetQueuePosition - fast position read from the Redis cache
func (h *QueueHandler) GetQueuePosition(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	doctorID := e.Request.URL.Query().Get("doctor_id")
	if doctorID == "" {
		return apis.NewBadRequestError("Doctor ID required", nil)
	}

	position := h.queueService.CachedPosition(e.Request.Context(), doctorID, e.Auth.Id)
	return e.JSON(http.StatusOK, map[string]any{"position": position})
}

// CancelEntry - patient withdraws their own waiting entry
func (h *QueueHandler) CancelEntry(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		QueueID string `json:"queue_id"`
		Reason  string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.QueueID == "" {
		return apis.NewBadRequestError("Queue ID required", nil)
	}

	entry, err := h.queueService.Ledger.FindEntry(req.QueueID)
	if err != nil {
		return apiError(err)
	}
	if entry.PatientID != e.Auth.Id && !isQueueActor(e.Auth, entry.DoctorID) {
		return apis.NewForbiddenError("Not allowed", nil)
	}

	if err := h.queueService.Cancel(e.Request.Context(), entry.ID, entry.DoctorID, req.Reason); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Appointment cancelled"})
}

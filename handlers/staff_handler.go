package handlers

import (
	"net/http"

	"hospital-queue/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// StaffHandler serves the queue-advancing endpoints: only staff, or the
// doctor owning the queue, may call them.
type StaffHandler struct {
	app            *pocketbase.PocketBase
	queueService   *services.QueueService
	statsService   *services.StatsService
	displayService *services.DisplayService
}

func NewStaffHandler(app *pocketbase.PocketBase, queueService *services.QueueService, statsService *services.StatsService, displayService *services.DisplayService) *StaffHandler {
	return &StaffHandler{
		app:            app,
		queueService:   queueService,
		statsService:   statsService,
		displayService: displayService,
	}
}

type staffQueueRequest struct {
	QueueID  string `json:"queue_id"`
	DoctorID string `json:"doctor_id"`
	Reason   string `json:"cancellation_reason"`
}

func (h *StaffHandler) bindQueueActor(e *core.RequestEvent, needQueueID bool) (*staffQueueRequest, error) {
	if e.Auth == nil {
		return nil, apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req staffQueueRequest
	if err := e.BindBody(&req); err != nil {
		return nil, apis.NewBadRequestError("Invalid request", err)
	}
	if req.DoctorID == "" {
		return nil, apis.NewBadRequestError("Doctor ID required", nil)
	}
	if needQueueID && req.QueueID == "" {
		return nil, apis.NewBadRequestError("Queue ID required", nil)
	}
	if !isQueueActor(e.Auth, req.DoctorID) {
		return nil, apis.NewForbiddenError("Staff or owning doctor access required", nil)
	}
	return &req, nil
}

// MarkServed - complete the active consultation and call the next patient
func (h *StaffHandler) MarkServed(e *core.RequestEvent) error {
	req, err := h.bindQueueActor(e, true)
	if err != nil {
		return err
	}

	next, remaining, err := h.queueService.MarkServed(e.Request.Context(), req.QueueID, req.DoctorID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message":      "Patient marked as served",
		"next_patient": next,
		"remaining":    remaining,
	})
}

// MarkNoShow - record that the active patient did not show up
func (h *StaffHandler) MarkNoShow(e *core.RequestEvent) error {
	req, err := h.bindQueueActor(e, true)
	if err != nil {
		return err
	}

	remaining, err := h.queueService.MarkNoShow(e.Request.Context(), req.QueueID, req.DoctorID, req.Reason)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message":   "Patient marked as no-show",
		"remaining": remaining,
	})
}

// ReEnter - readmit a no-show patient ahead of the waiting tier
func (h *StaffHandler) ReEnter(e *core.RequestEvent) error {
	req, err := h.bindQueueActor(e, true)
	if err != nil {
		return err
	}

	if err := h.queueService.ReEnter(e.Request.Context(), req.QueueID, req.DoctorID); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Patient re-entered the queue"})
}

// Undo - reverse the most recent serve/no-show for the doctor
func (h *StaffHandler) Undo(e *core.RequestEvent) error {
	req, err := h.bindQueueActor(e, false)
	if err != nil {
		return err
	}

	restored, err := h.queueService.Undo(e.Request.Context(), req.DoctorID)
	if err != nil {
		return apiError(err)
	}
	if restored == nil {
		return e.JSON(http.StatusOK, map[string]any{"message": "Nothing to undo"})
	}
	return e.JSON(http.StatusOK, map[string]any{
		"message":  "Last action undone",
		"restored": restored,
	})
}

// Freeze - stop promotions until resume
func (h *StaffHandler) Freeze(e *core.RequestEvent) error {
	req, err := h.bindQueueActor(e, false)
	if err != nil {
		return err
	}
	if err := h.queueService.Freeze(e.Request.Context(), req.DoctorID); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Queue frozen"})
}

// Resume - lift a freeze and fill the consultation slot
func (h *StaffHandler) Resume(e *core.RequestEvent) error {
	req, err := h.bindQueueActor(e, false)
	if err != nil {
		return err
	}
	if err := h.queueService.Resume(e.Request.Context(), req.DoctorID); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Queue resumed"})
}

// SetAvailability - staff-only gate on whether a doctor accepts joins
func (h *StaffHandler) SetAvailability(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	if e.Auth.GetString("role") != RoleStaff {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	var req struct {
		DoctorID  string `json:"doctor_id"`
		Available bool   `json:"available"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.DoctorID == "" {
		return apis.NewBadRequestError("Doctor ID required", nil)
	}

	if err := h.queueService.SetAvailability(e.Request.Context(), req.DoctorID, req.Available); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"message":   "Availability updated",
		"doctor_id": req.DoctorID,
		"available": req.Available,
	})
}

// Dashboard - aggregate stats for the staff landing page
func (h *StaffHandler) Dashboard(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	if e.Auth.GetString("role") != RoleStaff {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	stats, err := h.statsService.DashboardStats()
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, stats)
}

// IssueDisplayCode - mint an access code for a doctor's waiting-room board
func (h *StaffHandler) IssueDisplayCode(e *core.RequestEvent) error {
	req, err := h.bindQueueActor(e, false)
	if err != nil {
		return err
	}

	code, err := h.displayService.IssueCode(e.Request.Context(), req.DoctorID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"doctor_id": req.DoctorID,
		"code":      code,
	})
}

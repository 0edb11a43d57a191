package handlers

import (
	"net/http"

	"hospital-queue/models"
	"hospital-queue/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// DisplayHandler serves the waiting-room token board: a read-only,
// anonymized queue view gated by a staff-issued access code instead of a
// user account.
type DisplayHandler struct {
	app            *pocketbase.PocketBase
	queueService   *services.QueueService
	displayService *services.DisplayService
}

func NewDisplayHandler(app *pocketbase.PocketBase, queueService *services.QueueService, displayService *services.DisplayService) *DisplayHandler {
	return &DisplayHandler{
		app:            app,
		queueService:   queueService,
		displayService: displayService,
	}
}

// GetBoard - the token board for one doctor
func (h *DisplayHandler) GetBoard(e *core.RequestEvent) error {
	doctorID := e.Request.PathValue("doctorId")
	code := e.Request.URL.Query().Get("code")
	if doctorID == "" || code == "" {
		return apis.NewBadRequestError("Doctor ID and access code required", nil)
	}

	ctx := e.Request.Context()
	if err := h.displayService.VerifyCode(ctx, doctorID, code); err != nil {
		return apiError(err)
	}

	entries, doctor, err := h.queueService.GetQueueStatus(ctx, doctorID)
	if err != nil {
		return apiError(err)
	}

	// Only tokens and positions go on the public board.
	board := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		board = append(board, map[string]any{
			"token":    entry.Token,
			"status":   entry.Status,
			"position": entry.Position,
		})
	}

	var nowServing any
	for _, entry := range entries {
		if entry.Status == models.StatusActive {
			nowServing = entry.Token
			break
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"doctor_name": doctor.Name,
		"now_serving": nowServing,
		"board":       board,
		"waiting":     doctor.CurrentQueueCount,
	})
}

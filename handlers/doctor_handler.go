package handlers

import (
	"net/http"

	"hospital-queue/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
)

type DoctorHandler struct {
	app    *pocketbase.PocketBase
	ledger *services.LedgerService
}

func NewDoctorHandler(app *pocketbase.PocketBase, ledger *services.LedgerService) *DoctorHandler {
	return &DoctorHandler{
		app:    app,
		ledger: ledger,
	}
}

// ListDoctors - browse doctors, optionally filtered by specialty and
// availability, ordered by rating
func (h *DoctorHandler) ListDoctors(e *core.RequestEvent) error {
	query := e.Request.URL.Query()
	specialty := query.Get("specialty")
	availableOnly := query.Get("available") == "1" || query.Get("available") == "true"

	doctors, err := h.ledger.ListDoctors(specialty, availableOnly)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"doctors": doctors})
}

// GetDoctor - single doctor summary
func (h *DoctorHandler) GetDoctor(e *core.RequestEvent) error {
	doctor, err := h.ledger.FindDoctor(e.Request.PathValue("doctorId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, doctor)
}

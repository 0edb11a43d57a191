package handlers

import (
	"errors"

	"hospital-queue/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const (
	RolePatient = "patient"
	RoleStaff   = "staff"
	RoleDoctor  = "doctor"
)

// apiError maps the service error kinds onto HTTP responses.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", err)
	case errors.Is(err, status.ErrForbidden):
		return apis.NewForbiddenError("Not allowed", err)
	case errors.Is(err, status.ErrDoctorUnavailable):
		return apis.NewBadRequestError("Doctor is not accepting new patients", err)
	case errors.Is(err, status.ErrValidation):
		return apis.NewBadRequestError("Invalid request", err)
	case errors.Is(err, status.ErrConflict):
		return apis.NewApiError(409, "Queue was updated concurrently, please try again", err)
	}
	return apis.NewBadRequestError("Request failed", err)
}

// isQueueActor reports whether the caller may advance the given doctor's
// queue: any staff member, or the doctor owning it.
func isQueueActor(auth *core.Record, doctorID string) bool {
	if auth == nil {
		return false
	}
	switch auth.GetString("role") {
	case RoleStaff:
		return true
	case RoleDoctor:
		return auth.GetString("doctor_id") == doctorID
	}
	return false
}

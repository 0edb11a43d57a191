package status

import "errors"

var (
	ErrDoctorUnavailable = errors.New("queue: doctor is not accepting new patients")
	ErrNotFound          = errors.New("queue: record not found")
	ErrForbidden         = errors.New("queue: caller is not allowed to perform this action")
	ErrConflict          = errors.New("queue: concurrent update, retry with a fresh read")
	ErrValidation        = errors.New("queue: invalid input")
)

package handler

import (
	"errors"

	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/queue"
	"github.com/jwalitptl/clinic-desk/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-desk/pkg/errors"
	"github.com/jwalitptl/clinic-desk/pkg/validator"
)

// Translate maps service and repository errors onto API errors. Anything
// unrecognised is a 500.
func Translate(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	if fields := validator.Describe(err); fields != nil {
		return apperrors.Validation(fields)
	}

	switch {
	case errors.Is(err, service.ErrQueueEmpty):
		return apperrors.NotFound("waiting patient", err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("record", err)
	case errors.Is(err, service.ErrInvalidInput):
		return apperrors.BadRequest(err.Error(), err)
	case errors.Is(err, service.ErrPriceUndefined),
		errors.Is(err, service.ErrPatientMismatch):
		return apperrors.Unprocessable(err.Error(), err)
	case errors.Is(err, service.ErrStaleTransition),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrQueuePaused),
		errors.Is(err, service.ErrDoctorBusy),
		errors.Is(err, service.ErrAlreadyQueued),
		errors.Is(err, service.ErrInvoiceFinalized),
		errors.Is(err, service.ErrSessionClosed),
		errors.Is(err, repository.ErrStale),
		errors.Is(err, repository.ErrDuplicate):
		return apperrors.Conflict(err.Error(), err)
	case errors.Is(err, queue.ErrFeedUnavailable):
		return apperrors.Unavailable(err.Error(), err)
	case errors.Is(err, auth.ErrInvalidToken):
		return apperrors.Unauthorized(err)
	}
	return apperrors.Internal(err)
}

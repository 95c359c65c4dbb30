package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/queue"
	"github.com/jwalitptl/clinic-desk/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-desk/pkg/errors"
)

func TestTranslate(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("failed to do it: %w", err) }

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"app error passes through", apperrors.Forbidden(nil), http.StatusForbidden},
		{"empty queue", wrap(service.ErrQueueEmpty), http.StatusNotFound},
		{"not found", wrap(repository.ErrNotFound), http.StatusNotFound},
		{"invalid input", wrap(service.ErrInvalidInput), http.StatusBadRequest},
		{"price undefined", wrap(service.ErrPriceUndefined), http.StatusUnprocessableEntity},
		{"stale transition", wrap(service.ErrStaleTransition), http.StatusConflict},
		{"paused terminal", wrap(service.ErrQueuePaused), http.StatusConflict},
		{"finalized invoice", wrap(service.ErrInvoiceFinalized), http.StatusConflict},
		{"duplicate row", wrap(repository.ErrDuplicate), http.StatusConflict},
		{"no feed", wrap(queue.ErrFeedUnavailable), http.StatusServiceUnavailable},
		{"bad token", wrap(auth.ErrInvalidToken), http.StatusUnauthorized},
		{"anything else", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, Translate(tt.err).StatusCode())
		})
	}
}

func TestTranslateHidesInternalCause(t *testing.T) {
	appErr := Translate(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", appErr.Message)
}

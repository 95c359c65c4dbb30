package service

import "errors"

// Domain errors. Services wrap these with %w; the HTTP layer maps them to
// status codes in one place.
var (
	ErrInvalidTransition = errors.New("action not allowed from current queue status")
	ErrStaleTransition   = errors.New("queue entry changed concurrently")
	ErrQueuePaused       = errors.New("queue is paused on this terminal")
	ErrQueueEmpty        = errors.New("no patients waiting")
	ErrDoctorBusy        = errors.New("doctor already has a patient in consultation")
	ErrAlreadyQueued     = errors.New("patient already has an active visit today")
	ErrPriceUndefined    = errors.New("no price defined for item")
	ErrInvoiceFinalized  = errors.New("invoice is finalized")
	ErrSessionClosed     = errors.New("consultation already completed")
	ErrPatientMismatch   = errors.New("queue entry belongs to another patient")
	ErrInvalidInput      = errors.New("invalid input")
)

package domain

import (
	"errors"
	"fmt"
	"strings"

	"lessonflow/internal/models"
)

var (
	ErrSessionNotFound  = errors.New("booking session not found")
	ErrUnknownFlowType  = errors.New("unknown flow type")
	ErrUnknownStep      = errors.New("step is not part of this flow")
	ErrFocusAreaLimit   = errors.New("focus area limit exceeded for lesson type")
	ErrNotTerminal      = errors.New("booking session has not reached its final step")
	ErrAlreadyCommitted = errors.New("booking session already committed")
	ErrInvalidSlot      = errors.New("invalid slot date or time")
	ErrIncompleteDraft  = errors.New("draft is missing data required for booking")
	ErrAdminOnly        = errors.New("flow type requires an admin identity")
	ErrCommitIncomplete = errors.New("booking created but incomplete; retry the commit")
)

// ValidationError is returned when a step gate is not satisfied.
type ValidationError struct {
	Step   models.StepName
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("step %s is not complete", e.Step)
	}
	return fmt.Sprintf("step %s is not complete: missing %s", e.Step, strings.Join(e.Fields, ", "))
}

// SlotConflictError means the slot cannot be taken: another session holds an
// overlapping reservation, a booking occupies it, or it is not offered.
// Alternatives lists other bookable times of the same date, when known.
type SlotConflictError struct {
	Date         string
	Time         string
	Alternatives []string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot %s %s is no longer available", e.Date, e.Time)
}

// SlotLostError means the reservation expired or was taken before commit.
type SlotLostError struct {
	Date string
	Time string
}

func (e *SlotLostError) Error() string {
	return fmt.Sprintf("reservation for %s %s was lost; choose the time again", e.Date, e.Time)
}

// PartialCommitError means the booking row exists but some join rows are
// missing. Retrying the commit for the same session completes them.
type PartialCommitError struct {
	BookingID int64
	Stage     string
	Err       error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("booking %d created but incomplete at %s: %v", e.BookingID, e.Stage, e.Err)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

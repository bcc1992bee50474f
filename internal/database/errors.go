package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrSlotTaken means a non-cancelled booking already occupies part of the slot.
	ErrSlotTaken = errors.New("time slot already booked")

	// ErrTransient marks failures that may succeed when retried (busy or locked database).
	ErrTransient = errors.New("transient storage error")
)

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
		}
		if se.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(se.Error(), "bookings.start_time") {
			return fmt.Errorf("%s: %w: %w", op, ErrSlotTaken, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

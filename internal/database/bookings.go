package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lessonflow/internal/models"
)

const bookingColumns = `id, session_id, parent_id, lesson_type, date, start_time, end_time, amount,
                 status, payment_status, booking_method, focus_area_other, special_requests,
                 admin_payment_method, admin_notes,
                 dropoff_person_name, dropoff_person_relationship, dropoff_person_phone,
                 pickup_person_name, pickup_person_relationship, pickup_person_phone,
                 waiver_signed, waiver_signed_at, created_at, updated_at`

// CreateBooking inserts booking unless a non-cancelled booking on the same
// date overlaps its time span. The check and the insert are one statement, so
// two commits cannot both claim the slot; the loser gets ErrSlotTaken.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	span, ok := models.LessonSpan(booking.Time, booking.LessonType)
	if !ok {
		return fmt.Errorf("failed to create booking: invalid start time %q", booking.Time)
	}
	endTime := models.FormatClock(span.End)

	query := `INSERT INTO bookings (
				session_id, parent_id, lesson_type, date, start_time, end_time, amount,
				status, payment_status, booking_method, focus_area_other, special_requests,
				admin_payment_method, admin_notes,
				dropoff_person_name, dropoff_person_relationship, dropoff_person_phone,
				pickup_person_name, pickup_person_relationship, pickup_person_phone,
				waiver_signed, waiver_signed_at, created_at, updated_at
			)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE NOT EXISTS (
				SELECT 1 FROM bookings
				WHERE date = ? AND status <> ? AND start_time < ? AND end_time > ?
			)`
	now := time.Now()
	var signedAt sql.NullTime
	if booking.WaiverSignedAt != nil {
		signedAt = sql.NullTime{Time: *booking.WaiverSignedAt, Valid: true}
	}
	result, err := db.ExecContext(ctx, query,
		booking.SessionID,
		booking.ParentID,
		booking.LessonType,
		booking.Date,
		booking.Time,
		endTime,
		booking.Amount,
		booking.Status,
		booking.PaymentStatus,
		booking.BookingMethod,
		booking.FocusAreaOther,
		booking.SpecialRequests,
		booking.AdminPaymentMethod,
		booking.AdminNotes,
		booking.DropoffPersonName,
		booking.DropoffPersonRelationship,
		booking.DropoffPersonPhone,
		booking.PickupPersonName,
		booking.PickupPersonRelationship,
		booking.PickupPersonPhone,
		booking.WaiverSigned,
		signedAt,
		now,
		now,
		booking.Date,
		models.StatusCancelled,
		endTime,
		booking.Time,
	)
	if err != nil {
		return wrapErr("failed to create booking", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("booking %s %s: %w", booking.Date, booking.Time, ErrSlotTaken)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.EndTime = endTime
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("failed to get booking", err)
	}
	return b, nil
}

// FindBookingBySession returns the booking committed by sessionID, or nil.
func (db *DB) FindBookingBySession(ctx context.Context, sessionID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE session_id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("failed to find booking", err)
	}
	return b, nil
}

// GetBookedSlots returns the spans taken by non-cancelled bookings on date.
func (db *DB) GetBookedSlots(ctx context.Context, date string) ([]models.BookedSlot, error) {
	query := `SELECT start_time, end_time FROM bookings
              WHERE date = ? AND status <> ?
              ORDER BY start_time`
	rows, err := db.QueryContext(ctx, query, date, models.StatusCancelled)
	if err != nil {
		return nil, wrapErr("failed to get booked slots", err)
	}
	defer rows.Close()

	var slots []models.BookedSlot
	for rows.Next() {
		var b models.BookedSlot
		if err := rows.Scan(&b.Time, &b.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan booked slot: %w", err)
		}
		slots = append(slots, b)
	}
	return slots, rows.Err()
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, from, to string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE date >= ? AND date <= ?
              ORDER BY date ASC, start_time ASC`
	rows, err := db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, wrapErr("failed to get bookings by date range", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return wrapErr("failed to update booking status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var signedAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.SessionID, &b.ParentID, &b.LessonType, &b.Date, &b.Time, &b.EndTime, &b.Amount,
		&b.Status, &b.PaymentStatus, &b.BookingMethod, &b.FocusAreaOther, &b.SpecialRequests,
		&b.AdminPaymentMethod, &b.AdminNotes,
		&b.DropoffPersonName, &b.DropoffPersonRelationship, &b.DropoffPersonPhone,
		&b.PickupPersonName, &b.PickupPersonRelationship, &b.PickupPersonPhone,
		&b.WaiverSigned, &signedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if signedAt.Valid {
		at := signedAt.Time
		b.WaiverSignedAt = &at
	}
	return &b, nil
}

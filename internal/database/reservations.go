package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lessonflow/internal/models"
)

// InsertIfAvailable claims (date, time) in one upsert. The update branch only
// fires when the existing row belongs to the same session or has expired, so
// concurrent callers cannot both win.
func (db *DB) InsertIfAvailable(ctx context.Context, res *models.Reservation, now time.Time) (*models.Reservation, bool, error) {
	query := `INSERT INTO slot_reservations (date, start_time, lesson_type, session_id, expires_at, created_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(date, start_time) DO UPDATE SET
                lesson_type = excluded.lesson_type,
                expires_at = excluded.expires_at,
                created_at = CASE
                    WHEN slot_reservations.session_id = excluded.session_id THEN slot_reservations.created_at
                    ELSE excluded.created_at END,
                session_id = excluded.session_id
              WHERE slot_reservations.session_id = excluded.session_id
                 OR slot_reservations.expires_at <= ?`
	result, err := db.ExecContext(ctx, query,
		res.Date,
		res.Time,
		res.LessonType,
		res.SessionID,
		res.ExpiresAt.UnixMilli(),
		res.CreatedAt.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return nil, false, wrapErr("failed to reserve slot", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil, true, nil
	}

	holder, err := db.GetReservation(ctx, res.Date, res.Time)
	if err != nil {
		return nil, false, err
	}
	return holder, false, nil
}

// GetReservation returns the stored reservation, live or not, or nil.
func (db *DB) GetReservation(ctx context.Context, date, slotTime string) (*models.Reservation, error) {
	query := `SELECT date, start_time, lesson_type, session_id, expires_at, created_at
              FROM slot_reservations WHERE date = ? AND start_time = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, date, slotTime))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("failed to get reservation", err)
	}
	return r, nil
}

func (db *DB) DeleteIfOwner(ctx context.Context, date, slotTime, sessionID string) (bool, error) {
	query := `DELETE FROM slot_reservations WHERE date = ? AND start_time = ? AND session_id = ?`
	result, err := db.ExecContext(ctx, query, date, slotTime, sessionID)
	if err != nil {
		return false, wrapErr("failed to release slot", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (db *DB) ListReservations(ctx context.Context, date string) ([]*models.Reservation, error) {
	query := `SELECT date, start_time, lesson_type, session_id, expires_at, created_at
              FROM slot_reservations WHERE date = ? ORDER BY start_time`
	rows, err := db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, wrapErr("failed to list reservations", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM slot_reservations WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, wrapErr("failed to sweep reservations", err)
	}
	return result.RowsAffected()
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var expiresAt, createdAt int64
	if err := row.Scan(&r.Date, &r.Time, &r.LessonType, &r.SessionID, &expiresAt, &createdAt); err != nil {
		return nil, err
	}
	r.ExpiresAt = time.UnixMilli(expiresAt)
	r.CreatedAt = time.UnixMilli(createdAt)
	return &r, nil
}

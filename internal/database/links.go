package database

import (
	"context"
	"fmt"

	"lessonflow/internal/models"
)

// Join rows are insert-if-absent so a retried commit only adds what is missing.

func (db *DB) LinkBookingAthlete(ctx context.Context, bookingID, athleteID int64, slotOrder int) error {
	query := `INSERT OR IGNORE INTO booking_athletes (booking_id, athlete_id, slot_order) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, bookingID, athleteID, slotOrder); err != nil {
		return wrapErr("failed to link athlete", err)
	}
	return nil
}

func (db *DB) LinkBookingFocusArea(ctx context.Context, bookingID, focusAreaID int64) error {
	query := `INSERT OR IGNORE INTO booking_focus_areas (booking_id, focus_area_id) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, bookingID, focusAreaID); err != nil {
		return wrapErr("failed to link focus area", err)
	}
	return nil
}

func (db *DB) LinkBookingApparatus(ctx context.Context, bookingID, apparatusID int64) error {
	query := `INSERT OR IGNORE INTO booking_apparatus (booking_id, apparatus_id) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, bookingID, apparatusID); err != nil {
		return wrapErr("failed to link apparatus", err)
	}
	return nil
}

func (db *DB) LinkBookingSideQuest(ctx context.Context, bookingID, sideQuestID int64) error {
	query := `INSERT OR IGNORE INTO booking_side_quests (booking_id, side_quest_id) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, bookingID, sideQuestID); err != nil {
		return wrapErr("failed to link side quest", err)
	}
	return nil
}

// ResolveApparatus returns the id of the named apparatus, creating it if needed.
func (db *DB) ResolveApparatus(ctx context.Context, name string) (int64, error) {
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO apparatus (name) VALUES (?)`, name); err != nil {
		return 0, wrapErr("failed to create apparatus", err)
	}
	var id int64
	if err := db.QueryRowContext(ctx, `SELECT id FROM apparatus WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, wrapErr("failed to resolve apparatus", err)
	}
	return id, nil
}

func (db *DB) ResolveFocusArea(ctx context.Context, apparatusID int64, name string) (int64, error) {
	query := `INSERT OR IGNORE INTO focus_areas (apparatus_id, name) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, apparatusID, name); err != nil {
		return 0, wrapErr("failed to create focus area", err)
	}
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM focus_areas WHERE apparatus_id = ? AND name = ?`, apparatusID, name).Scan(&id)
	if err != nil {
		return 0, wrapErr("failed to resolve focus area", err)
	}
	return id, nil
}

func (db *DB) ResolveSideQuest(ctx context.Context, name string) (int64, error) {
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO side_quests (name) VALUES (?)`, name); err != nil {
		return 0, wrapErr("failed to create side quest", err)
	}
	var id int64
	if err := db.QueryRowContext(ctx, `SELECT id FROM side_quests WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, wrapErr("failed to resolve side quest", err)
	}
	return id, nil
}

func (db *DB) GetBookingLinks(ctx context.Context, bookingID int64) (*models.BookingLinks, error) {
	links := &models.BookingLinks{}

	rows, err := db.QueryContext(ctx,
		`SELECT athlete_id, slot_order FROM booking_athletes WHERE booking_id = ? ORDER BY slot_order`, bookingID)
	if err != nil {
		return nil, wrapErr("failed to get booking athletes", err)
	}
	for rows.Next() {
		var ba models.BookingAthlete
		if err := rows.Scan(&ba.AthleteID, &ba.SlotOrder); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking athlete: %w", err)
		}
		links.Athletes = append(links.Athletes, ba)
	}
	rows.Close()

	for _, rel := range []struct {
		query string
		dest  *[]int64
	}{
		{`SELECT focus_area_id FROM booking_focus_areas WHERE booking_id = ? ORDER BY focus_area_id`, &links.FocusAreas},
		{`SELECT apparatus_id FROM booking_apparatus WHERE booking_id = ? ORDER BY apparatus_id`, &links.Apparatus},
		{`SELECT side_quest_id FROM booking_side_quests WHERE booking_id = ? ORDER BY side_quest_id`, &links.SideQuests},
	} {
		ids, err := db.queryIDs(ctx, rel.query, bookingID)
		if err != nil {
			return nil, err
		}
		*rel.dest = ids
	}
	return links, nil
}

func (db *DB) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("failed to query booking links", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lessonflow/internal/models"
)

const athleteColumns = `id, parent_id, first_name, last_name, date_of_birth,
                 gender, allergies, experience, created_at, updated_at`

func (db *DB) CreateAthlete(ctx context.Context, athlete *models.Athlete) error {
	query := `INSERT INTO athletes (
				parent_id, first_name, last_name, date_of_birth,
				gender, allergies, experience, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		athlete.ParentID,
		athlete.FirstName,
		athlete.LastName,
		athlete.DateOfBirth,
		athlete.Gender,
		athlete.Allergies,
		athlete.Experience,
		now,
		now,
	)
	if err != nil {
		return wrapErr("failed to create athlete", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	athlete.ID = id
	athlete.CreatedAt = now
	athlete.UpdatedAt = now
	return nil
}

func (db *DB) GetAthlete(ctx context.Context, id int64) (*models.Athlete, error) {
	query := `SELECT ` + athleteColumns + ` FROM athletes WHERE id = ?`
	a, err := db.queryAthlete(ctx, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("athlete %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("failed to get athlete", err)
	}
	return a, nil
}

// FindAthlete looks up an athlete of parentID by name and date of birth.
// Returns nil when there is no such athlete.
func (db *DB) FindAthlete(ctx context.Context, parentID int64, firstName, lastName, dateOfBirth string) (*models.Athlete, error) {
	query := `SELECT ` + athleteColumns + ` FROM athletes
              WHERE parent_id = ? AND first_name = ? COLLATE NOCASE
                AND last_name = ? COLLATE NOCASE AND date_of_birth = ?
              ORDER BY id LIMIT 1`
	a, err := db.queryAthlete(ctx, query, parentID, firstName, lastName, dateOfBirth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("failed to find athlete", err)
	}
	return a, nil
}

func (db *DB) GetAthletesByParent(ctx context.Context, parentID int64) ([]*models.Athlete, error) {
	query := `SELECT ` + athleteColumns + ` FROM athletes WHERE parent_id = ? ORDER BY first_name, last_name`
	rows, err := db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, wrapErr("failed to get athletes", err)
	}
	defer rows.Close()

	var athletes []*models.Athlete
	for rows.Next() {
		a := &models.Athlete{}
		if err := rows.Scan(
			&a.ID, &a.ParentID, &a.FirstName, &a.LastName, &a.DateOfBirth,
			&a.Gender, &a.Allergies, &a.Experience, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan athlete: %w", err)
		}
		athletes = append(athletes, a)
	}
	return athletes, rows.Err()
}

func (db *DB) queryAthlete(ctx context.Context, query string, args ...interface{}) (*models.Athlete, error) {
	var a models.Athlete
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.ParentID, &a.FirstName, &a.LastName, &a.DateOfBirth,
		&a.Gender, &a.Allergies, &a.Experience, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

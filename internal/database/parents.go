package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lessonflow/internal/models"
)

const parentColumns = `id, first_name, last_name, email, phone,
                 emergency_contact_name, emergency_contact_phone, created_at, updated_at`

func (db *DB) CreateParent(ctx context.Context, parent *models.Parent) error {
	query := `INSERT INTO parents (
				first_name, last_name, email, phone,
				emergency_contact_name, emergency_contact_phone, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		parent.FirstName,
		parent.LastName,
		parent.Email,
		parent.Phone,
		parent.EmergencyContactName,
		parent.EmergencyContactPhone,
		now,
		now,
	)
	if err != nil {
		return wrapErr("failed to create parent", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	parent.ID = id
	parent.CreatedAt = now
	parent.UpdatedAt = now
	return nil
}

func (db *DB) GetParent(ctx context.Context, id int64) (*models.Parent, error) {
	query := `SELECT ` + parentColumns + ` FROM parents WHERE id = ?`
	p, err := db.queryParent(ctx, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("parent %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("failed to get parent", err)
	}
	return p, nil
}

// FindParentByContact matches by email (case-insensitive) or phone. Returns
// nil when no parent matches.
func (db *DB) FindParentByContact(ctx context.Context, email, phone string) (*models.Parent, error) {
	if email == "" && phone == "" {
		return nil, nil
	}
	query := `SELECT ` + parentColumns + ` FROM parents
              WHERE (? <> '' AND email = ? COLLATE NOCASE) OR (? <> '' AND phone = ?)
              ORDER BY id LIMIT 1`
	p, err := db.queryParent(ctx, query, email, email, phone, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("failed to find parent", err)
	}
	return p, nil
}

func (db *DB) queryParent(ctx context.Context, query string, args ...interface{}) (*models.Parent, error) {
	var p models.Parent
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.EmergencyContactName, &p.EmergencyContactPhone, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

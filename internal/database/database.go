package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB with the booking schema.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite допускает одного писателя; одно соединение также сохраняет :memory: базу
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Родители
		`CREATE TABLE IF NOT EXISTS parents (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            first_name TEXT NOT NULL,
            last_name TEXT NOT NULL,
            email TEXT NOT NULL,
            phone TEXT NOT NULL,
            emergency_contact_name TEXT NOT NULL DEFAULT '',
            emergency_contact_phone TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		// Спортсмены
		`CREATE TABLE IF NOT EXISTS athletes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            parent_id INTEGER NOT NULL,
            first_name TEXT NOT NULL,
            last_name TEXT NOT NULL,
            date_of_birth TEXT NOT NULL,
            gender TEXT NOT NULL DEFAULT '',
            allergies TEXT NOT NULL DEFAULT '',
            experience TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (parent_id) REFERENCES parents(id)
        )`,

		// Бронирования; session_id делает создание идемпотентным
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            session_id TEXT NOT NULL UNIQUE,
            parent_id INTEGER NOT NULL,
            lesson_type TEXT NOT NULL,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            amount TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            payment_status TEXT NOT NULL DEFAULT 'unpaid',
            booking_method TEXT NOT NULL DEFAULT 'online',
            focus_area_other TEXT NOT NULL DEFAULT '',
            special_requests TEXT NOT NULL DEFAULT '',
            admin_payment_method TEXT NOT NULL DEFAULT '',
            admin_notes TEXT NOT NULL DEFAULT '',
            dropoff_person_name TEXT NOT NULL DEFAULT '',
            dropoff_person_relationship TEXT NOT NULL DEFAULT '',
            dropoff_person_phone TEXT NOT NULL DEFAULT '',
            pickup_person_name TEXT NOT NULL DEFAULT '',
            pickup_person_relationship TEXT NOT NULL DEFAULT '',
            pickup_person_phone TEXT NOT NULL DEFAULT '',
            waiver_signed BOOLEAN NOT NULL DEFAULT 0,
            waiver_signed_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (parent_id) REFERENCES parents(id)
        )`,

		// Справочники
		`CREATE TABLE IF NOT EXISTS apparatus (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE
        )`,
		`CREATE TABLE IF NOT EXISTS focus_areas (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            apparatus_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            UNIQUE (apparatus_id, name),
            FOREIGN KEY (apparatus_id) REFERENCES apparatus(id)
        )`,
		`CREATE TABLE IF NOT EXISTS side_quests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE
        )`,

		// Связи бронирования
		`CREATE TABLE IF NOT EXISTS booking_athletes (
            booking_id INTEGER NOT NULL,
            athlete_id INTEGER NOT NULL,
            slot_order INTEGER NOT NULL,
            PRIMARY KEY (booking_id, athlete_id),
            FOREIGN KEY (booking_id) REFERENCES bookings(id),
            FOREIGN KEY (athlete_id) REFERENCES athletes(id)
        )`,
		`CREATE TABLE IF NOT EXISTS booking_focus_areas (
            booking_id INTEGER NOT NULL,
            focus_area_id INTEGER NOT NULL,
            PRIMARY KEY (booking_id, focus_area_id),
            FOREIGN KEY (booking_id) REFERENCES bookings(id),
            FOREIGN KEY (focus_area_id) REFERENCES focus_areas(id)
        )`,
		`CREATE TABLE IF NOT EXISTS booking_apparatus (
            booking_id INTEGER NOT NULL,
            apparatus_id INTEGER NOT NULL,
            PRIMARY KEY (booking_id, apparatus_id),
            FOREIGN KEY (booking_id) REFERENCES bookings(id),
            FOREIGN KEY (apparatus_id) REFERENCES apparatus(id)
        )`,
		`CREATE TABLE IF NOT EXISTS booking_side_quests (
            booking_id INTEGER NOT NULL,
            side_quest_id INTEGER NOT NULL,
            PRIMARY KEY (booking_id, side_quest_id),
            FOREIGN KEY (booking_id) REFERENCES bookings(id),
            FOREIGN KEY (side_quest_id) REFERENCES side_quests(id)
        )`,

		// Временные резервы слотов; expires_at в миллисекундах unix
		`CREATE TABLE IF NOT EXISTS slot_reservations (
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            lesson_type TEXT NOT NULL,
            session_id TEXT NOT NULL,
            expires_at INTEGER NOT NULL,
            created_at INTEGER NOT NULL,
            PRIMARY KEY (date, start_time)
        )`,

		// Индексы
		`CREATE INDEX IF NOT EXISTS idx_parents_email ON parents(email COLLATE NOCASE)`,
		`CREATE INDEX IF NOT EXISTS idx_parents_phone ON parents(phone)`,
		`CREATE INDEX IF NOT EXISTS idx_athletes_parent ON athletes(parent_id, last_name, first_name)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date, start_time)`,
		// одно действующее бронирование на время начала
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(date, start_time) WHERE status <> 'cancelled'`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_parent ON bookings(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_slot_reservations_expires ON slot_reservations(expires_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}

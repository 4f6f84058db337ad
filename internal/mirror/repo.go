package mirror

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Row is one mirrored check-in as stored in Postgres.
type Row struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Day       string    `json:"day"`
	CheckedAt time.Time `json:"checked_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists the best-effort copy of accepted check-ins.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the mirror table when it is missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkin_mirror (
			id UUID PRIMARY KEY,
			student_id TEXT NOT NULL,
			day TEXT NOT NULL,
			checked_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (student_id, day)
		)
	`)
	return err
}

// Insert writes one mirrored check-in. Re-mirroring the same (day, student)
// pair updates the timestamp, so the table ends up with one row per stored
// check-in record just like the day file.
func (r *Repository) Insert(ctx context.Context, studentID, day string, checkedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkin_mirror (id, student_id, day, checked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, day) DO UPDATE SET checked_at = EXCLUDED.checked_at
	`, uuid.NewString(), studentID, day, checkedAt)
	return err
}

// ListDay returns the mirrored rows for one day key, newest first.
func (r *Repository) ListDay(ctx context.Context, day string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, day, checked_at, created_at
		FROM checkin_mirror
		WHERE day = $1
		ORDER BY checked_at DESC
		LIMIT $2
	`, day, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.StudentID, &row.Day, &row.CheckedAt, &row.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

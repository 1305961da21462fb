package repository

import (
	"context"
	"database/sql"

	"github.com/radieske/friendsbet/pkg/contracts/events"
)

// PostgresRepo appends rows to activity_log.
type PostgresRepo struct {
	DB *sql.DB
}

// NewPostgresRepo expects db to have the wagering migrations applied.
func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// Insert stores one activity and returns its id.
func (r *PostgresRepo) Insert(ctx context.Context, a events.ActivityUpdate) (int64, error) {
	const q = `
		INSERT INTO activity_log
		  (kind, event_id, user_id, message, payload, occurred_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`
	payload := string(a.Payload) // lib/pq would send []byte as bytea
	if payload == "" {
		payload = "{}"
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, q,
		a.Kind, a.EventID, a.UserID, a.Message, payload, a.OccurredAt,
	).Scan(&id)
	return id, err
}

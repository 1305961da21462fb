package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/pkg/contracts/events"
)

// ActivityReadRepo reads the activity_log written by the activity worker.
type ActivityReadRepo struct {
	DB *sql.DB
}

// Recent returns the latest activity rows, newest first. Database failures come
// back as *domain.StorageError.
func (r *ActivityReadRepo) Recent(ctx context.Context, limit int) ([]events.ActivityUpdate, error) {
	const q = `
		SELECT id, kind, event_id, user_id, message, payload, occurred_at
		FROM activity_log
		ORDER BY id DESC
		LIMIT $1;
	`
	rows, err := r.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, domain.Fault("activity recent", err)
	}
	defer rows.Close()

	out := make([]events.ActivityUpdate, 0, limit)
	for rows.Next() {
		var (
			a       events.ActivityUpdate
			payload []byte
		)
		if err := rows.Scan(&a.ID, &a.Kind, &a.EventID, &a.UserID, &a.Message, &payload, &a.OccurredAt); err != nil {
			return nil, domain.Fault("activity recent", err)
		}
		a.Payload = payload
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Fault("activity recent", err)
	}
	return out, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/storage"
)

func (t *txn) InsertEvent(ctx context.Context, e domain.Event) error {
	_, err := t.exec(ctx, `
		INSERT INTO events (id, title, status, winning_outcome_id, created_at, approved_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, string(e.Status), nullString(e.WinningOutcomeID),
		toMillis(e.CreatedAt), nullMillis(e.ApprovedAt), nullMillis(e.ResolvedAt))
	if err := t.insertErr("insert event", err); err != nil {
		return err
	}

	for _, o := range e.Outcomes {
		_, err := t.exec(ctx, `
			INSERT INTO outcomes (id, event_id, name, odds, position)
			VALUES (?, ?, ?, ?, ?)`,
			o.ID, e.ID, o.Name, o.Odds.StringFixed(domain.OddsScale), o.Position)
		if err := t.insertErr("insert outcome", err); err != nil {
			return err
		}
	}
	return nil
}

const eventColumns = `id, title, status, winning_outcome_id, created_at, approved_at, resolved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (domain.Event, error) {
	var (
		e        domain.Event
		status   string
		winning  sql.NullString
		created  int64
		approved sql.NullInt64
		resolved sql.NullInt64
	)
	if err := s.Scan(&e.ID, &e.Title, &status, &winning, &created, &approved, &resolved); err != nil {
		return domain.Event{}, err
	}
	e.Status = domain.EventStatus(status)
	if winning.Valid {
		w := winning.String
		e.WinningOutcomeID = &w
	}
	e.CreatedAt = fromMillis(created)
	e.ApprovedAt = timePtr(approved)
	e.ResolvedAt = timePtr(resolved)
	return e, nil
}

func (t *txn) GetEvent(ctx context.Context, eventID string, mode storage.LockMode) (domain.Event, error) {
	var lock string
	switch mode {
	case storage.LockShared:
		lock = t.d.ShareLock
	case storage.LockExclusive:
		lock = t.d.UpdateLock
	}

	e, err := scanEvent(t.queryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`+lock, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, domain.Fault("get event", err)
	}

	if e.Outcomes, err = t.outcomes(ctx, e.ID); err != nil {
		return domain.Event{}, err
	}
	return e, nil
}

func (t *txn) outcomes(ctx context.Context, eventID string) ([]domain.Outcome, error) {
	rows, err := t.query(ctx, `
		SELECT id, event_id, name, odds, position
		FROM outcomes
		WHERE event_id = ?
		ORDER BY position`, eventID)
	if err != nil {
		return nil, domain.Fault("list outcomes", err)
	}
	defer rows.Close()

	var out []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.ID, &o.EventID, &o.Name, &o.Odds, &o.Position); err != nil {
			return nil, domain.Fault("scan outcome", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Fault("list outcomes", err)
	}
	return out, nil
}

// ListEvents returns events with the given status, or all events when status is empty.
func (t *txn) ListEvents(ctx context.Context, status domain.EventStatus) ([]domain.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC, id`

	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, domain.Fault("list events", err)
	}
	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, domain.Fault("scan event", err)
		}
		out = append(out, e)
	}
	// outcomes are read only after the cursor is closed; one connection per tx
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, domain.Fault("list events", err)
	}

	for i := range out {
		if out[i].Outcomes, err = t.outcomes(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *txn) UpdateEventStatus(ctx context.Context, e domain.Event) error {
	res, err := t.exec(ctx, `
		UPDATE events
		SET status = ?, winning_outcome_id = ?, approved_at = ?, resolved_at = ?
		WHERE id = ?`,
		string(e.Status), nullString(e.WinningOutcomeID), nullMillis(e.ApprovedAt), nullMillis(e.ResolvedAt), e.ID)
	if err != nil {
		return domain.Fault("update event", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *txn) DeleteEvent(ctx context.Context, eventID string) error {
	if _, err := t.exec(ctx, `DELETE FROM outcomes WHERE event_id = ?`, eventID); err != nil {
		return domain.Fault("delete outcomes", err)
	}
	res, err := t.exec(ctx, `DELETE FROM events WHERE id = ?`, eventID)
	if err != nil {
		return domain.Fault("delete event", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

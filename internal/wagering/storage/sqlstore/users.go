package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/storage"
)

func (t *txn) InsertUser(ctx context.Context, u domain.User) error {
	_, err := t.exec(ctx, `INSERT INTO users (id, balance, created_at) VALUES (?, ?, ?)`,
		u.ID, u.Balance, toMillis(u.CreatedAt))
	return t.insertErr("insert user", err)
}

func (t *txn) LockUser(ctx context.Context, userID string) (domain.User, error) {
	return t.getUser(ctx, userID, t.d.UpdateLock)
}

func (t *txn) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return t.getUser(ctx, userID, "")
}

func (t *txn) getUser(ctx context.Context, userID, lock string) (domain.User, error) {
	var (
		u       domain.User
		created int64
	)
	err := t.queryRow(ctx, `SELECT id, balance, created_at FROM users WHERE id = ?`+lock, userID).
		Scan(&u.ID, &u.Balance, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.User{}, domain.Fault("get user", err)
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (t *txn) SetBalance(ctx context.Context, userID string, balance int64) error {
	res, err := t.exec(ctx, `UPDATE users SET balance = ? WHERE id = ?`, balance, userID)
	if err != nil {
		return domain.Fault("set balance", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *txn) InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := t.exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, kind, amount, balance_after, ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.Kind), e.Amount, e.BalanceAfter, e.Ref, toMillis(e.CreatedAt))
	return t.insertErr("insert ledger entry", err)
}

func (t *txn) ListLedgerEntries(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	rows, err := t.query(ctx, `
		SELECT id, user_id, kind, amount, balance_after, ref, created_at
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, domain.Fault("list ledger entries", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e       domain.LedgerEntry
			kind    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &e.Amount, &e.BalanceAfter, &e.Ref, &created); err != nil {
			return nil, domain.Fault("scan ledger entry", err)
		}
		e.Kind = domain.EntryKind(kind)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Fault("list ledger entries", err)
	}
	return out, nil
}

func (t *txn) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error) {
	rows, err := t.query(ctx, `
		SELECT u.id, u.balance, COUNT(DISTINCT b.event_id)
		FROM users u
		LEFT JOIN bets b ON b.user_id = u.id AND b.status = 'WON'
		GROUP BY u.id, u.balance
		ORDER BY u.balance DESC, u.id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, domain.Fault("leaderboard", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardRow
	for rows.Next() {
		var r domain.LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Balance, &r.EventsWon); err != nil {
			return nil, domain.Fault("scan leaderboard", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Fault("leaderboard", err)
	}
	return out, nil
}

func (t *txn) LockSupply(ctx context.Context) (int64, error) {
	var minted int64
	err := t.queryRow(ctx, `SELECT minted FROM ledger_supply WHERE id = 1`+t.d.UpdateLock).Scan(&minted)
	if err != nil {
		return 0, domain.Fault("lock supply", err)
	}
	return minted, nil
}

func (t *txn) SetSupply(ctx context.Context, minted int64) error {
	if _, err := t.exec(ctx, `UPDATE ledger_supply SET minted = ? WHERE id = 1`, minted); err != nil {
		return domain.Fault("set supply", err)
	}
	return nil
}

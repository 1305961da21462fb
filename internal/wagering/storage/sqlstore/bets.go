package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/storage"
)

func (t *txn) InsertBet(ctx context.Context, b domain.Bet) error {
	_, err := t.exec(ctx, `
		INSERT INTO bets (id, user_id, event_id, outcome_id, amount, locked_odds, status, payout, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.EventID, b.OutcomeID, b.Amount, b.LockedOdds.StringFixed(domain.OddsScale),
		string(b.Status), b.Payout, toMillis(b.CreatedAt), nullMillis(b.SettledAt))
	return t.insertErr("insert bet", err)
}

const betColumns = `b.seq, b.id, b.user_id, b.event_id, b.outcome_id, b.amount, b.locked_odds, b.status, b.payout, b.created_at, b.settled_at`

func (t *txn) listBets(ctx context.Context, q string, args ...any) ([]domain.Bet, error) {
	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, domain.Fault("list bets", err)
	}
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		var (
			b       domain.Bet
			status  string
			created int64
			settled sql.NullInt64
		)
		if err := rows.Scan(&b.Seq, &b.ID, &b.UserID, &b.EventID, &b.OutcomeID, &b.Amount,
			&b.LockedOdds, &status, &b.Payout, &created, &settled); err != nil {
			return nil, domain.Fault("scan bet", err)
		}
		b.Status = domain.BetStatus(status)
		b.CreatedAt = fromMillis(created)
		b.SettledAt = timePtr(settled)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Fault("list bets", err)
	}
	return out, nil
}

func (t *txn) ListBetsByEvent(ctx context.Context, eventID string) ([]domain.Bet, error) {
	return t.listBets(ctx, `SELECT `+betColumns+` FROM bets b WHERE b.event_id = ? ORDER BY b.seq ASC`, eventID)
}

func (t *txn) ListBetsByUser(ctx context.Context, userID string) ([]domain.Bet, error) {
	return t.listBets(ctx, `SELECT `+betColumns+` FROM bets b WHERE b.user_id = ? ORDER BY b.seq DESC`, userID)
}

// ListBets orders unresolved events last, then by resolution time and bet recency.
func (t *txn) ListBets(ctx context.Context, f storage.BetFilter) ([]domain.Bet, error) {
	var (
		conds []string
		args  []any
	)
	if f.ResolvedFrom != nil {
		conds = append(conds, `e.resolved_at >= ?`)
		args = append(args, toMillis(*f.ResolvedFrom))
	}
	if f.ResolvedTo != nil {
		conds = append(conds, `e.resolved_at < ?`)
		args = append(args, toMillis(*f.ResolvedTo))
	}

	q := `SELECT ` + betColumns + ` FROM bets b JOIN events e ON e.id = b.event_id`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY CASE WHEN e.resolved_at IS NULL THEN 1 ELSE 0 END, e.resolved_at DESC, b.seq DESC`
	return t.listBets(ctx, q, args...)
}

func (t *txn) SettleBet(ctx context.Context, betID string, status domain.BetStatus, payout int64, settledAt time.Time) error {
	res, err := t.exec(ctx, `
		UPDATE bets SET status = ?, payout = ?, settled_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		string(status), payout, toMillis(settledAt), betID)
	if err != nil {
		return domain.Fault("settle bet", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Fault("settle bet", err)
	}
	if n == 0 {
		return storage.ErrStaleBet
	}
	return nil
}

func (t *txn) InsertSettlement(ctx context.Context, r domain.SettlementReport) error {
	_, err := t.exec(ctx, `
		INSERT INTO settlements (event_id, winning_outcome_id, pot, winner_count, total_paid_out, remainder, forfeited, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EventID, r.WinningOutcomeID, r.Pot, r.WinnerCount, r.TotalPaidOut, r.Remainder,
		boolInt(r.Forfeited), toMillis(r.ResolvedAt))
	return t.insertErr("insert settlement", err)
}

func (t *txn) GetSettlement(ctx context.Context, eventID string) (domain.SettlementReport, error) {
	var (
		r         domain.SettlementReport
		forfeited int
		resolved  int64
	)
	err := t.queryRow(ctx, `
		SELECT event_id, winning_outcome_id, pot, winner_count, total_paid_out, remainder, forfeited, resolved_at
		FROM settlements WHERE event_id = ?`, eventID).
		Scan(&r.EventID, &r.WinningOutcomeID, &r.Pot, &r.WinnerCount, &r.TotalPaidOut, &r.Remainder, &forfeited, &resolved)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SettlementReport{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.SettlementReport{}, domain.Fault("get settlement", err)
	}
	r.Forfeited = forfeited != 0
	r.ResolvedAt = fromMillis(resolved)

	won, err := t.listBets(ctx, `
		SELECT `+betColumns+` FROM bets b
		WHERE b.event_id = ? AND b.status = 'WON'
		ORDER BY b.seq ASC`, eventID)
	if err != nil {
		return domain.SettlementReport{}, err
	}
	r.Payouts = make([]domain.Payout, 0, len(won))
	for _, b := range won {
		r.Payouts = append(r.Payouts, domain.Payout{BetID: b.ID, UserID: b.UserID, Amount: b.Payout})
	}
	return r, nil
}

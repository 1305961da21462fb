// Package settlement resolves events and pays the pot out to winning bets.
package settlement

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/storage"
)

var errPotOverflow = errors.New("pot exceeds int64")

// Resolver closes events; registry.Registry implements it.
type Resolver interface {
	MarkResolvedTx(ctx context.Context, tx storage.Tx, eventID, winningOutcomeID string, resolvedAt time.Time) (domain.Event, error)
	EventTx(ctx context.Context, tx storage.Tx, eventID string, mode storage.LockMode) (domain.Event, error)
}

// BetSettler lists and settles the bets of an event; betbook.BetBook implements it.
type BetSettler interface {
	BetsForEventTx(ctx context.Context, tx storage.Tx, eventID string) ([]domain.Bet, error)
	SettleTx(ctx context.Context, tx storage.Tx, betID string, status domain.BetStatus, payout int64, at time.Time) error
}

// Crediter pays winners inside the resolving transaction; ledger.Ledger implements it.
type Crediter interface {
	CreditTx(ctx context.Context, tx storage.Tx, userID string, amount int64, ref string) (int64, error)
}

// Engine settles events. Resolution and every payout it makes share one transaction.
type Engine struct {
	store  storage.Store
	events Resolver
	bets   BetSettler
	ledger Crediter
	log    *zap.Logger
	now    func() time.Time
}

// New wires an Engine over the shared store. A nil log discards output.
func New(store storage.Store, events Resolver, bets BetSettler, ledger Crediter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:  store,
		events: events,
		bets:   bets,
		ledger: ledger,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Resolve closes the event on winningOutcomeID and settles every bet on it in one
// transaction. A second call for the same event fails with ErrAlreadyResolved and
// pays nothing. A zero resolvedAt means now.
func (e *Engine) Resolve(ctx context.Context, eventID, winningOutcomeID string, resolvedAt time.Time) (domain.SettlementReport, error) {
	if resolvedAt.IsZero() {
		resolvedAt = e.now()
	}
	resolvedAt = resolvedAt.UTC()

	var report domain.SettlementReport
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := e.events.MarkResolvedTx(ctx, tx, eventID, winningOutcomeID, resolvedAt); err != nil {
			return err
		}

		all, err := e.bets.BetsForEventTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		var (
			pot     int64
			winners []domain.Bet
		)
		for _, b := range all {
			// stakes never exceed ledger.MaxSupply, so this only trips on corrupt rows
			if b.Amount > math.MaxInt64-pot {
				return domain.Fault("sum pot", errPotOverflow)
			}
			pot += b.Amount
			if b.OutcomeID == winningOutcomeID {
				winners = append(winners, b)
			}
		}

		payouts, paid := Distribute(pot, winners)
		byBet := make(map[string]int64, len(payouts))
		for _, p := range payouts {
			byBet[p.BetID] = p.Amount
		}

		for _, b := range all {
			status, amount := domain.BetLost, int64(0)
			if b.OutcomeID == winningOutcomeID {
				status, amount = domain.BetWon, byBet[b.ID]
			}
			if err := e.bets.SettleTx(ctx, tx, b.ID, status, amount, resolvedAt); err != nil {
				return domain.Fault("settle bet", err)
			}
		}

		// users are locked in a fixed order so concurrent resolutions cannot deadlock
		credits := make([]domain.Payout, len(payouts))
		copy(credits, payouts)
		sort.Slice(credits, func(i, j int) bool {
			if credits[i].UserID != credits[j].UserID {
				return credits[i].UserID < credits[j].UserID
			}
			return credits[i].BetID < credits[j].BetID
		})
		for _, c := range credits {
			if _, err := e.ledger.CreditTx(ctx, tx, c.UserID, c.Amount, c.BetID); err != nil {
				return domain.Fault("credit payout", err)
			}
		}

		report = domain.SettlementReport{
			EventID:          eventID,
			WinningOutcomeID: winningOutcomeID,
			Pot:              pot,
			WinnerCount:      len(winners),
			TotalPaidOut:     paid,
			Remainder:        pot - paid,
			Forfeited:        len(winners) == 0 && pot > 0,
			ResolvedAt:       resolvedAt,
			Payouts:          payouts,
		}
		return tx.InsertSettlement(ctx, report)
	})
	if err != nil {
		return domain.SettlementReport{}, err
	}

	e.log.Info("event resolved",
		zap.String("event_id", eventID),
		zap.String("winning_outcome_id", winningOutcomeID),
		zap.Int64("pot", report.Pot),
		zap.Int("winners", report.WinnerCount),
		zap.Int64("paid_out", report.TotalPaidOut),
		zap.Int64("remainder", report.Remainder),
		zap.Bool("forfeited", report.Forfeited))
	return report, nil
}

// Report returns the stored settlement of a resolved event.
func (e *Engine) Report(ctx context.Context, eventID string) (report domain.SettlementReport, err error) {
	err = e.store.InTx(ctx, func(tx storage.Tx) error {
		report, err = tx.GetSettlement(ctx, eventID)
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if _, err := e.events.EventTx(ctx, tx, eventID, storage.LockNone); err != nil {
			return err
		}
		return domain.ErrSettlementNotFound
	})
	return report, err
}

// Package betbook records bets. Placing a bet debits the stake and inserts the
// bet in the same transaction as a shared lock on the event row.
package betbook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/storage"
)

// Events reads an event with a row lock inside a transaction.
type Events interface {
	EventTx(ctx context.Context, tx storage.Tx, eventID string, mode storage.LockMode) (domain.Event, error)
}

// Debiter moves the stake out of the user's balance.
type Debiter interface {
	DebitTx(ctx context.Context, tx storage.Tx, userID string, amount int64, ref string) (int64, error)
}

// BetBook places and lists bets. Settlement writes back through SettleTx.
type BetBook struct {
	store  storage.Store
	events Events
	ledger Debiter
	log    *zap.Logger
	now    func() time.Time
}

// New builds a BetBook. A nil log discards output.
func New(store storage.Store, events Events, ledger Debiter, log *zap.Logger) *BetBook {
	if log == nil {
		log = zap.NewNop()
	}
	return &BetBook{
		store:  store,
		events: events,
		ledger: ledger,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PlaceBet stakes amount on outcomeID with the outcome's current odds locked in.
// Any failure leaves balance and bets unchanged.
func (b *BetBook) PlaceBet(ctx context.Context, userID, eventID, outcomeID string, amount int64) (string, error) {
	if amount <= 0 {
		return "", domain.ErrInvalidAmount
	}

	bet := domain.Bet{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		OutcomeID: outcomeID,
		Amount:    amount,
		Status:    domain.BetPending,
	}
	var balance int64
	err := b.store.InTx(ctx, func(tx storage.Tx) error {
		ev, err := b.events.EventTx(ctx, tx, eventID, storage.LockShared)
		if err != nil {
			return err
		}
		if ev.Status != domain.EventOpen {
			return domain.ErrEventNotOpen
		}
		outcome, ok := ev.Outcome(outcomeID)
		if !ok {
			return domain.ErrUnknownOutcome
		}
		bet.LockedOdds = outcome.Odds

		if balance, err = b.ledger.DebitTx(ctx, tx, userID, amount, bet.ID); err != nil {
			return err
		}
		bet.CreatedAt = b.now()
		return tx.InsertBet(ctx, bet)
	})
	if err != nil {
		return "", err
	}

	b.log.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.String("user_id", userID),
		zap.String("event_id", eventID),
		zap.Int64("amount", amount),
		zap.String("locked_odds", bet.LockedOdds.String()),
		zap.Int64("balance", balance))
	return bet.ID, nil
}

// BetsForEvent lists the event's bets in placement order.
func (b *BetBook) BetsForEvent(ctx context.Context, eventID string) (bets []domain.Bet, err error) {
	err = b.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := b.events.EventTx(ctx, tx, eventID, storage.LockNone); err != nil {
			return err
		}
		bets, err = tx.ListBetsByEvent(ctx, eventID)
		return err
	})
	return bets, err
}

// BetsForEventTx is BetsForEvent inside the caller's transaction.
func (b *BetBook) BetsForEventTx(ctx context.Context, tx storage.Tx, eventID string) ([]domain.Bet, error) {
	return tx.ListBetsByEvent(ctx, eventID)
}

// BetsForUser lists the user's bets, most recent first.
func (b *BetBook) BetsForUser(ctx context.Context, userID string) (bets []domain.Bet, err error) {
	err = b.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		bets, err = tx.ListBetsByUser(ctx, userID)
		return err
	})
	return bets, err
}

// Filter restricts AllBets to events resolved in [ResolvedFrom, ResolvedTo).
type Filter struct {
	ResolvedFrom *time.Time
	ResolvedTo   *time.Time
}

// AllBets lists every bet; bets on unresolved events come last.
func (b *BetBook) AllBets(ctx context.Context, f Filter) (bets []domain.Bet, err error) {
	if f.ResolvedFrom != nil && f.ResolvedTo != nil && !f.ResolvedFrom.Before(*f.ResolvedTo) {
		return nil, domain.ErrInvalidArgument
	}
	err = b.store.InTx(ctx, func(tx storage.Tx) error {
		bets, err = tx.ListBets(ctx, storage.BetFilter{ResolvedFrom: f.ResolvedFrom, ResolvedTo: f.ResolvedTo})
		return err
	})
	return bets, err
}

// SettleTx records the final status and payout of a pending bet.
func (b *BetBook) SettleTx(ctx context.Context, tx storage.Tx, betID string, status domain.BetStatus, payout int64, at time.Time) error {
	if status != domain.BetWon && status != domain.BetLost {
		return domain.ErrInvalidArgument
	}
	return tx.SettleBet(ctx, betID, status, payout, at)
}

// Package ledger owns user balances. Every balance change takes the user's row
// lock first and writes one journal entry.
package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/storage"
)

// DefaultLeaderboardSize caps Leaderboard when the caller passes limit <= 0.
const DefaultLeaderboardSize = 50

// MaxSupply bounds the credits ever granted by OpenAccount and TopUp.
// Settlement only moves existing credits, so no balance or pot can exceed it.
const MaxSupply int64 = math.MaxInt64

var errBalanceOverflow = errors.New("balance overflow")

// Ledger applies balance changes under the user's row lock and journals each one.
type Ledger struct {
	store storage.Store
	log   *zap.Logger
	now   func() time.Time
}

// New builds a Ledger over store. A nil log discards output.
func New(store storage.Store, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// OpenAccount creates a user with the given starting balance.
func (l *Ledger) OpenAccount(ctx context.Context, userID string, initialBalance int64) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, domain.ErrInvalidArgument
	}
	if initialBalance < 0 {
		return domain.User{}, domain.ErrInvalidAmount
	}

	u := domain.User{ID: userID, Balance: initialBalance, CreatedAt: l.now()}
	err := l.store.InTx(ctx, func(tx storage.Tx) error {
		if err := mint(ctx, tx, initialBalance); err != nil {
			return err
		}
		if err := tx.InsertUser(ctx, u); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return domain.ErrAccountExists
			}
			return err
		}
		return tx.InsertLedgerEntry(ctx, domain.LedgerEntry{
			ID:           uuid.NewString(),
			UserID:       userID,
			Kind:         domain.EntryOpening,
			Amount:       initialBalance,
			BalanceAfter: initialBalance,
			CreatedAt:    u.CreatedAt,
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	l.log.Info("account opened", zap.String("user_id", userID), zap.Int64("balance", initialBalance))
	return u, nil
}

// Debit removes amount from the user's balance, or fails with ErrInsufficientFunds
// leaving it untouched.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, ref string) (balance int64, err error) {
	err = l.store.InTx(ctx, func(tx storage.Tx) error {
		balance, err = l.DebitTx(ctx, tx, userID, amount, ref)
		return err
	})
	return balance, err
}

// DebitTx is Debit inside the caller's transaction.
func (l *Ledger) DebitTx(ctx context.Context, tx storage.Tx, userID string, amount int64, ref string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	u, err := lockUser(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if u.Balance < amount {
		return 0, domain.ErrInsufficientFunds
	}
	balance := u.Balance - amount
	if err := l.apply(ctx, tx, userID, domain.EntryStake, -amount, balance, ref); err != nil {
		return 0, err
	}
	l.log.Debug("debit", zap.String("user_id", userID), zap.Int64("amount", amount), zap.Int64("balance", balance), zap.String("ref", ref))
	return balance, nil
}

// Credit adds a settlement payout to the user's balance. Payouts move credits that
// stakes already took out, so they do not count against MaxSupply; grants go
// through TopUp.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, ref string) (balance int64, err error) {
	err = l.store.InTx(ctx, func(tx storage.Tx) error {
		balance, err = l.CreditTx(ctx, tx, userID, amount, ref)
		return err
	})
	return balance, err
}

// CreditTx adds amount to the user's balance inside the caller's transaction without
// touching the supply. A zero amount only reads the balance.
func (l *Ledger) CreditTx(ctx context.Context, tx storage.Tx, userID string, amount int64, ref string) (int64, error) {
	return l.credit(ctx, tx, userID, domain.EntryPayout, amount, ref)
}

// TopUp grants extra credits to a user.
func (l *Ledger) TopUp(ctx context.Context, userID string, amount int64, ref string) (balance int64, err error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	err = l.store.InTx(ctx, func(tx storage.Tx) error {
		if err := mint(ctx, tx, amount); err != nil {
			return err
		}
		balance, err = l.credit(ctx, tx, userID, domain.EntryTopUp, amount, ref)
		return err
	})
	if err == nil {
		l.log.Info("top up", zap.String("user_id", userID), zap.Int64("amount", amount), zap.Int64("balance", balance))
	}
	return balance, err
}

func (l *Ledger) credit(ctx context.Context, tx storage.Tx, userID string, kind domain.EntryKind, amount int64, ref string) (int64, error) {
	if amount < 0 {
		return 0, domain.ErrInvalidAmount
	}
	u, err := lockUser(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return u.Balance, nil
	}
	if amount > math.MaxInt64-u.Balance {
		return 0, domain.Fault("credit", errBalanceOverflow)
	}
	balance := u.Balance + amount
	if err := l.apply(ctx, tx, userID, kind, amount, balance, ref); err != nil {
		return 0, err
	}
	l.log.Debug("credit", zap.String("user_id", userID), zap.String("kind", string(kind)), zap.Int64("amount", amount), zap.Int64("balance", balance))
	return balance, nil
}

func (l *Ledger) apply(ctx context.Context, tx storage.Tx, userID string, kind domain.EntryKind, delta, balance int64, ref string) error {
	if err := tx.SetBalance(ctx, userID, balance); err != nil {
		return err
	}
	return tx.InsertLedgerEntry(ctx, domain.LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         kind,
		Amount:       delta,
		BalanceAfter: balance,
		Ref:          ref,
		CreatedAt:    l.now(),
	})
}

// BalanceOf is a point-in-time read.
func (l *Ledger) BalanceOf(ctx context.Context, userID string) (balance int64, err error) {
	err = l.store.InTx(ctx, func(tx storage.Tx) error {
		balance, err = l.BalanceOfTx(ctx, tx, userID)
		return err
	})
	return balance, err
}

// BalanceOfTx reads the balance inside the caller's transaction.
func (l *Ledger) BalanceOfTx(ctx context.Context, tx storage.Tx, userID string) (int64, error) {
	u, err := tx.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

// Entries lists the user's journal, newest first.
func (l *Ledger) Entries(ctx context.Context, userID string) (entries []domain.LedgerEntry, err error) {
	err = l.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		entries, err = tx.ListLedgerEntries(ctx, userID)
		return err
	})
	return entries, err
}

// Leaderboard ranks users by balance and counts the distinct events each has won.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) (rows []domain.LeaderboardRow, err error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	err = l.store.InTx(ctx, func(tx storage.Tx) error {
		rows, err = tx.Leaderboard(ctx, limit)
		return err
	})
	return rows, err
}

func lockUser(ctx context.Context, tx storage.Tx, userID string) (domain.User, error) {
	u, err := tx.LockUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, err
}

// mint reserves amount of new credits. The supply row is locked before any user
// row, and settlement never takes it.
func mint(ctx context.Context, tx storage.Tx, amount int64) error {
	if amount == 0 {
		return nil
	}
	minted, err := tx.LockSupply(ctx)
	if err != nil {
		return err
	}
	if amount > MaxSupply-minted {
		return domain.ErrSupplyExceeded
	}
	return tx.SetSupply(ctx, minted+amount)
}

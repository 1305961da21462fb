// Package storage defines the transactional persistence contract used by the
// wagering components. Backends live in the postgres and sqlite subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/radieske/friendsbet/internal/wagering/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrStaleBet is returned when a bet update finds the bet no longer PENDING.
	ErrStaleBet = errors.New("bet is not pending")
)

// LockMode selects the row lock taken when reading an event.
type LockMode int

const (
	LockNone LockMode = iota
	// LockShared blocks resolution while a bet is being placed.
	LockShared
	// LockExclusive is held by resolution for the whole transaction.
	LockExclusive
)

// BetFilter narrows the all-bets listing by the resolution time of the bet's event.
type BetFilter struct {
	ResolvedFrom *time.Time
	ResolvedTo   *time.Time
}

// Store runs fn inside one transaction. The transaction commits when fn returns nil
// and rolls back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of row operations available inside a transaction.
type Tx interface {
	InsertUser(ctx context.Context, u domain.User) error
	// LockUser reads the user and holds its row lock until the transaction ends.
	LockUser(ctx context.Context, userID string) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
	SetBalance(ctx context.Context, userID string, balance int64) error
	InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, userID string) ([]domain.LedgerEntry, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error)
	// LockSupply reads the total credits ever granted and holds that row's lock
	// until the transaction ends.
	LockSupply(ctx context.Context) (int64, error)
	SetSupply(ctx context.Context, minted int64) error

	InsertEvent(ctx context.Context, e domain.Event) error
	GetEvent(ctx context.Context, eventID string, mode LockMode) (domain.Event, error)
	ListEvents(ctx context.Context, status domain.EventStatus) ([]domain.Event, error)
	UpdateEventStatus(ctx context.Context, e domain.Event) error
	DeleteEvent(ctx context.Context, eventID string) error

	InsertBet(ctx context.Context, b domain.Bet) error
	ListBetsByEvent(ctx context.Context, eventID string) ([]domain.Bet, error)
	ListBetsByUser(ctx context.Context, userID string) ([]domain.Bet, error)
	ListBets(ctx context.Context, f BetFilter) ([]domain.Bet, error)
	SettleBet(ctx context.Context, betID string, status domain.BetStatus, payout int64, settledAt time.Time) error

	InsertSettlement(ctx context.Context, r domain.SettlementReport) error
	GetSettlement(ctx context.Context, eventID string) (domain.SettlementReport, error)
}

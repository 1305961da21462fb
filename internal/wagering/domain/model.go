// Package domain holds the entities shared by the wagering components.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventPendingApproval EventStatus = "PENDING_APPROVAL"
	EventOpen            EventStatus = "OPEN"
	EventResolved        EventStatus = "RESOLVED"
)

type BetStatus string

const (
	BetPending BetStatus = "PENDING"
	BetWon     BetStatus = "WON"
	BetLost    BetStatus = "LOST"
)

type EntryKind string

const (
	EntryOpening EntryKind = "OPENING"
	EntryStake   EntryKind = "STAKE"
	EntryPayout  EntryKind = "PAYOUT"
	EntryTopUp   EntryKind = "TOPUP"
)

// OddsScale is the number of fractional digits an odds value may carry.
const OddsScale = 4

type User struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

// LedgerEntry is one journal row per balance movement.
type LedgerEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Kind         EntryKind `json:"kind"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balanceAfter"`
	Ref          string    `json:"ref,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Outcome struct {
	ID       string          `json:"id"`
	EventID  string          `json:"eventId"`
	Name     string          `json:"name"`
	Odds     decimal.Decimal `json:"odds"`
	Position int             `json:"position"`
}

type Event struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Status           EventStatus `json:"status"`
	Outcomes         []Outcome   `json:"outcomes"`
	WinningOutcomeID *string     `json:"winningOutcomeId,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	ApprovedAt       *time.Time  `json:"approvedAt,omitempty"`
	ResolvedAt       *time.Time  `json:"resolvedAt,omitempty"`
}

// Outcome returns the outcome with the given id, if it belongs to the event.
func (e Event) Outcome(id string) (Outcome, bool) {
	for _, o := range e.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

type Bet struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	EventID    string          `json:"eventId"`
	OutcomeID  string          `json:"outcomeId"`
	Amount     int64           `json:"amount"`
	LockedOdds decimal.Decimal `json:"lockedOdds"`
	Status     BetStatus       `json:"status"`
	Payout     int64           `json:"payout"`
	CreatedAt  time.Time       `json:"createdAt"`
	SettledAt  *time.Time      `json:"settledAt,omitempty"`
	Seq        int64           `json:"-"`
}

// Payout is the credit issued to one winning bet.
type Payout struct {
	BetID  string `json:"betId"`
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
}

// SettlementReport summarises one resolution. Remainder is the part of the pot lost
// to per-winner truncation (or the whole pot when Forfeited).
type SettlementReport struct {
	EventID          string    `json:"eventId"`
	WinningOutcomeID string    `json:"winningOutcomeId"`
	Pot              int64     `json:"pot"`
	WinnerCount      int       `json:"winnerCount"`
	TotalPaidOut     int64     `json:"totalPaidOut"`
	Remainder        int64     `json:"remainder"`
	Forfeited        bool      `json:"forfeited"`
	ResolvedAt       time.Time `json:"resolvedAt"`
	Payouts          []Payout  `json:"payouts"`
}

// LeaderboardRow is a read-only projection of a user's standing.
type LeaderboardRow struct {
	UserID    string `json:"userId"`
	Balance   int64  `json:"balance"`
	EventsWon int    `json:"eventsWon"`
}

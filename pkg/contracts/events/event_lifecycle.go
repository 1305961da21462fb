package events

import "time"

type Outcome struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Odds string `json:"odds"`
}

// EventCreated is published on "wager_event_created".
type EventCreated struct {
	EventID  string    `json:"event_id"`
	Title    string    `json:"title"`
	Status   string    `json:"status"` // PENDING_APPROVAL | OPEN
	Outcomes []Outcome `json:"outcomes"`
	TsUnixMs int64     `json:"ts_unix_ms"`
}

// EventApproved is published on "wager_event_approved".
type EventApproved struct {
	EventID  string `json:"event_id"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}

type Payout struct {
	BetID  string `json:"bet_id"`
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// EventResolved is published on "wager_event_resolved" once the pot was paid out.
type EventResolved struct {
	EventID          string    `json:"event_id"`
	WinningOutcomeID string    `json:"winning_outcome_id"`
	Pot              int64     `json:"pot"`
	WinnerCount      int       `json:"winner_count"`
	TotalPaidOut     int64     `json:"total_paid_out"`
	Remainder        int64     `json:"remainder"`
	Forfeited        bool      `json:"forfeited"`
	Payouts          []Payout  `json:"payouts"`
	ResolvedAt       time.Time `json:"resolved_at"`
	TsUnixMs         int64     `json:"ts_unix_ms"`
}

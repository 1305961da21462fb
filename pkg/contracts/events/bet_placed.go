package events

// BetPlaced is published on "wager_bet_placed" after the stake was debited.
type BetPlaced struct {
	BetID      string `json:"bet_id"`
	UserID     string `json:"user_id"`
	EventID    string `json:"event_id"`
	OutcomeID  string `json:"outcome_id"`
	Amount     int64  `json:"amount"`
	LockedOdds string `json:"locked_odds"` // decimal string, e.g. "2.5"
	TsUnixMs   int64  `json:"ts_unix_ms"`
}

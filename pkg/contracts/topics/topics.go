package topics

const (
	// Events
	EventCreated  = "wager_event_created"
	EventApproved = "wager_event_approved"
	EventResolved = "wager_event_resolved"

	// Bets
	BetPlaced = "wager_bet_placed"
)

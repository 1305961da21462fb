package dto

type ErrorResponse struct {
	Error string `json:"error"`
}

type BalanceResponse struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

type CreateEventResponse struct {
	EventID string `json:"eventId"`
	Status  string `json:"status"`
}

type PlaceBetResponse struct {
	BetID  string `json:"betId"`
	Status string `json:"status"` // PENDING
}

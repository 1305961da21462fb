package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateUserRequest struct {
	UserID         string `json:"userId" validate:"required,max=64"`
	InitialBalance *int64 `json:"initialBalance" validate:"omitempty,gte=0"` // defaults to the configured starting balance
}

type TopUpRequest struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Ref    string `json:"ref" validate:"max=128"`
}

type OutcomeRequest struct {
	Name string          `json:"name" validate:"required,max=100"`
	Odds decimal.Decimal `json:"odds"` // accepts 2.5 or "2.5"
}

type CreateEventRequest struct {
	Title    string           `json:"title" validate:"required,max=200"`
	Outcomes []OutcomeRequest `json:"outcomes" validate:"dive"`
	Approved bool             `json:"approved"`
}

type PlaceBetRequest struct {
	UserID    string `json:"userId" validate:"required"`
	EventID   string `json:"eventId" validate:"required"`
	OutcomeID string `json:"outcomeId" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
}

type ResolveRequest struct {
	WinningOutcomeID string     `json:"winningOutcomeId" validate:"required"`
	ResolvedAt       *time.Time `json:"resolvedAt"` // defaults to now
}

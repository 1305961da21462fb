// Package registry owns events, their outcomes and their lifecycle:
// PENDING_APPROVAL -> OPEN -> RESOLVED.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/storage"
)

// maxOdds bounds odds to what the NUMERIC(12,4) column can hold.
var maxOdds = decimal.NewFromInt(100_000_000)

// OutcomeSpec is one outcome requested at event creation.
type OutcomeSpec struct {
	Name string
	Odds decimal.Decimal
}

// Registry creates events and drives their status transitions.
type Registry struct {
	store storage.Store
	log   *zap.Logger
	now   func() time.Time
}

// New builds a Registry. A nil log discards output.
func New(store storage.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// CreateEvent stores a new event. Approved events open immediately; the rest wait
// for Approve.
func (r *Registry) CreateEvent(ctx context.Context, title string, outcomes []OutcomeSpec, approved bool) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.ErrInvalidArgument
	}
	if err := validateOutcomes(outcomes); err != nil {
		return "", err
	}

	now := r.now()
	ev := domain.Event{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    domain.EventPendingApproval,
		CreatedAt: now,
	}
	if approved {
		ev.Status = domain.EventOpen
		ev.ApprovedAt = &now
	}
	for i, o := range outcomes {
		ev.Outcomes = append(ev.Outcomes, domain.Outcome{
			ID:       uuid.NewString(),
			EventID:  ev.ID,
			Name:     strings.TrimSpace(o.Name),
			Odds:     o.Odds,
			Position: i,
		})
	}

	if err := r.store.InTx(ctx, func(tx storage.Tx) error { return tx.InsertEvent(ctx, ev) }); err != nil {
		return "", err
	}
	r.log.Info("event created",
		zap.String("event_id", ev.ID),
		zap.String("status", string(ev.Status)),
		zap.Int("outcomes", len(ev.Outcomes)))
	return ev.ID, nil
}

func validateOutcomes(outcomes []OutcomeSpec) error {
	if len(outcomes) == 0 {
		return domain.ErrInvalidOutcomeSet
	}
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		name := strings.TrimSpace(o.Name)
		if name == "" {
			return domain.ErrInvalidOutcomeSet
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return domain.ErrInvalidOutcomeSet
		}
		seen[key] = struct{}{}

		if !o.Odds.IsPositive() || o.Odds.GreaterThanOrEqual(maxOdds) {
			return domain.ErrInvalidOutcomeSet
		}
		if !o.Odds.Equal(o.Odds.Truncate(domain.OddsScale)) {
			return domain.ErrInvalidOutcomeSet
		}
	}
	return nil
}

// Approve moves a pending event to OPEN.
func (r *Registry) Approve(ctx context.Context, eventID string) error {
	err := r.store.InTx(ctx, func(tx storage.Tx) error {
		ev, err := getEvent(ctx, tx, eventID, storage.LockExclusive)
		if err != nil {
			return err
		}
		if ev.Status != domain.EventPendingApproval {
			return domain.ErrNotPending
		}
		now := r.now()
		ev.Status = domain.EventOpen
		ev.ApprovedAt = &now
		return tx.UpdateEventStatus(ctx, ev)
	})
	if err != nil {
		return err
	}
	r.log.Info("event approved", zap.String("event_id", eventID))
	return nil
}

// DeletePending removes an event that was never approved. Such events cannot
// carry bets.
func (r *Registry) DeletePending(ctx context.Context, eventID string) error {
	err := r.store.InTx(ctx, func(tx storage.Tx) error {
		ev, err := getEvent(ctx, tx, eventID, storage.LockExclusive)
		if err != nil {
			return err
		}
		if ev.Status != domain.EventPendingApproval {
			return domain.ErrNotPending
		}
		return tx.DeleteEvent(ctx, eventID)
	})
	if err != nil {
		return err
	}
	r.log.Info("pending event deleted", zap.String("event_id", eventID))
	return nil
}

// MarkResolvedTx closes an OPEN event on the winning outcome. The caller must hold
// the event's exclusive lock through tx.
func (r *Registry) MarkResolvedTx(ctx context.Context, tx storage.Tx, eventID, winningOutcomeID string, resolvedAt time.Time) (domain.Event, error) {
	ev, err := getEvent(ctx, tx, eventID, storage.LockExclusive)
	if err != nil {
		return domain.Event{}, err
	}
	switch ev.Status {
	case domain.EventResolved:
		return domain.Event{}, domain.ErrAlreadyResolved
	case domain.EventOpen:
	default:
		return domain.Event{}, domain.ErrEventNotOpen
	}
	if _, ok := ev.Outcome(winningOutcomeID); !ok {
		return domain.Event{}, domain.ErrUnknownOutcome
	}

	at := resolvedAt.UTC()
	winner := winningOutcomeID
	ev.Status = domain.EventResolved
	ev.WinningOutcomeID = &winner
	ev.ResolvedAt = &at
	if err := tx.UpdateEventStatus(ctx, ev); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

func (r *Registry) Get(ctx context.Context, eventID string) (ev domain.Event, err error) {
	err = r.store.InTx(ctx, func(tx storage.Tx) error {
		ev, err = getEvent(ctx, tx, eventID, storage.LockNone)
		return err
	})
	return ev, err
}

func (r *Registry) OutcomesOf(ctx context.Context, eventID string) ([]domain.Outcome, error) {
	ev, err := r.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return ev.Outcomes, nil
}

func (r *Registry) StatusOf(ctx context.Context, eventID string) (domain.EventStatus, error) {
	ev, err := r.Get(ctx, eventID)
	if err != nil {
		return "", err
	}
	return ev.Status, nil
}

// List returns events in the given status, newest first; an empty status lists all.
func (r *Registry) List(ctx context.Context, status domain.EventStatus) (events []domain.Event, err error) {
	switch status {
	case "", domain.EventPendingApproval, domain.EventOpen, domain.EventResolved:
	default:
		return nil, domain.ErrInvalidArgument
	}
	err = r.store.InTx(ctx, func(tx storage.Tx) error {
		events, err = tx.ListEvents(ctx, status)
		return err
	})
	return events, err
}

// EventTx reads an event inside the caller's transaction with the requested lock.
func (r *Registry) EventTx(ctx context.Context, tx storage.Tx, eventID string, mode storage.LockMode) (domain.Event, error) {
	return getEvent(ctx, tx, eventID, mode)
}

func getEvent(ctx context.Context, tx storage.Tx, eventID string, mode storage.LockMode) (domain.Event, error) {
	ev, err := tx.GetEvent(ctx, eventID, mode)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return ev, err
}

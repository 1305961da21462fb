package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/friendsbet/internal/wager-service/dto"
	"github.com/radieske/friendsbet/internal/wagering/betbook"
	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/pkg/contracts/events"
)

const dateLayout = "2006-01-02"

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	betID, err := s.Bets.PlaceBet(r.Context(), req.UserID, req.EventID, req.OutcomeID, req.Amount)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.BetRejections.WithLabelValues(rejectReason(err)).Inc()
		}
		s.fail(w, r, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.BetsPlaced.Inc()
		s.Metrics.StakedCredits.Add(float64(req.Amount))
	}

	if s.Publisher != nil {
		afterCommit(r, func(ctx context.Context) {
			// outcome odds never change once the event exists, so they equal the locked odds
			ev, err := s.Events.Get(ctx, req.EventID)
			if err != nil {
				s.Log.Warn("reload event for bet", zap.String("bet_id", betID), zap.Error(err))
				return
			}
			o, _ := ev.Outcome(req.OutcomeID)
			s.published("bet_placed", s.Publisher.PublishBetPlaced(ctx, events.BetPlaced{
				BetID:      betID,
				UserID:     req.UserID,
				EventID:    req.EventID,
				OutcomeID:  req.OutcomeID,
				Amount:     req.Amount,
				LockedOdds: o.Odds.String(),
			}))
		})
	}
	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{BetID: betID, Status: string(domain.BetPending)})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrEventNotOpen):
		return "event_not_open"
	case errors.Is(err, domain.ErrUnknownOutcome):
		return "unknown_outcome"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrEventNotFound), errors.Is(err, domain.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStorageFault):
		return "storage"
	default:
		return "other"
	}
}

// allBets takes optional from/to dates (YYYY-MM-DD, UTC); both bounds are
// inclusive days.
func (s *Server) allBets(w http.ResponseWriter, r *http.Request) {
	var f betbook.Filter
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		f.ResolvedFrom = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		end := t.AddDate(0, 0, 1)
		f.ResolvedTo = &end
	}
	bets, err := s.Bets.AllBets(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

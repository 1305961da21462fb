package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/internal/wager-service/dto"
	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/registry"
	"github.com/radieske/friendsbet/pkg/contracts/events"
)

// statusAliases lets ?status= take the short lowercase names used by the UI.
var statusAliases = map[string]domain.EventStatus{
	"pending":  domain.EventPendingApproval,
	"open":     domain.EventOpen,
	"resolved": domain.EventResolved,
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEventRequest
	if !s.decode(w, r, &req) {
		return
	}
	specs := make([]registry.OutcomeSpec, 0, len(req.Outcomes))
	for _, o := range req.Outcomes {
		specs = append(specs, registry.OutcomeSpec{Name: o.Name, Odds: o.Odds})
	}
	id, err := s.Events.CreateEvent(r.Context(), req.Title, specs, req.Approved)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := domain.EventPendingApproval
	if req.Approved {
		status = domain.EventOpen
	}
	if s.Publisher != nil {
		afterCommit(r, func(ctx context.Context) {
			ev, err := s.Events.Get(ctx, id)
			if err != nil {
				s.Log.Warn("reload created event", zap.String("event_id", id), zap.Error(err))
				return
			}
			s.published("event_created", s.Publisher.PublishEventCreated(ctx, eventCreated(ev)))
		})
	}
	writeJSON(w, http.StatusCreated, dto.CreateEventResponse{EventID: id, Status: string(status)})
}

func eventCreated(ev domain.Event) events.EventCreated {
	out := make([]events.Outcome, 0, len(ev.Outcomes))
	for _, o := range ev.Outcomes {
		out = append(out, events.Outcome{ID: o.ID, Name: o.Name, Odds: o.Odds.String()})
	}
	return events.EventCreated{EventID: ev.ID, Title: ev.Title, Status: string(ev.Status), Outcomes: out}
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	status, ok := statusAliases[strings.ToLower(raw)]
	if !ok {
		status = domain.EventStatus(strings.ToUpper(raw))
	}
	list, err := s.Events.List(r.Context(), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if s.Cache != nil {
		var cached domain.Event
		hit, err := s.Cache.GetEvent(ctx, id, &cached)
		switch {
		case err != nil:
			s.cacheLookup("error")
			s.Log.Warn("event cache read failed", zap.String("event_id", id), zap.Error(err))
		case hit:
			s.cacheLookup("hit")
			writeJSON(w, http.StatusOK, cached)
			return
		default:
			s.cacheLookup("miss")
		}
	}

	ev, err := s.Events.Get(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.Cache != nil {
		if err := s.Cache.SetEvent(ctx, id, ev); err != nil {
			s.Log.Warn("event cache write failed", zap.String("event_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) cacheLookup(result string) {
	if s.Metrics != nil {
		s.Metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (s *Server) approveEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Events.Approve(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	afterCommit(r, func(ctx context.Context) {
		s.invalidate(ctx, id)
		if s.Publisher != nil {
			s.published("event_approved", s.Publisher.PublishEventApproved(ctx, events.EventApproved{EventID: id}))
		}
	})
	writeJSON(w, http.StatusOK, dto.CreateEventResponse{EventID: id, Status: string(domain.EventOpen)})
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Events.DeletePending(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	afterCommit(r, func(ctx context.Context) { s.invalidate(ctx, id) })
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resolveEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	var at time.Time
	if req.ResolvedAt != nil {
		at = *req.ResolvedAt
	}
	report, err := s.Settlement.Resolve(r.Context(), id, req.WinningOutcomeID, at)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if s.Metrics != nil {
		kind := "paid"
		if report.Forfeited {
			kind = "forfeited"
		}
		s.Metrics.Settlements.WithLabelValues(kind).Inc()
		s.Metrics.CreditsPaid.Add(float64(report.TotalPaidOut))
		s.Metrics.RoundingLeak.Add(float64(report.Remainder))
	}
	afterCommit(r, func(ctx context.Context) {
		s.invalidate(ctx, id)
		if s.Publisher != nil {
			s.published("event_resolved", s.Publisher.PublishEventResolved(ctx, eventResolved(report)))
		}
	})
	writeJSON(w, http.StatusOK, report)
}

func eventResolved(rep domain.SettlementReport) events.EventResolved {
	payouts := make([]events.Payout, 0, len(rep.Payouts))
	for _, p := range rep.Payouts {
		payouts = append(payouts, events.Payout{BetID: p.BetID, UserID: p.UserID, Amount: p.Amount})
	}
	return events.EventResolved{
		EventID:          rep.EventID,
		WinningOutcomeID: rep.WinningOutcomeID,
		Pot:              rep.Pot,
		WinnerCount:      rep.WinnerCount,
		TotalPaidOut:     rep.TotalPaidOut,
		Remainder:        rep.Remainder,
		Forfeited:        rep.Forfeited,
		Payouts:          payouts,
		ResolvedAt:       rep.ResolvedAt,
	}
}

func (s *Server) eventBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.Bets.BetsForEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) settlementReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Settlement.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

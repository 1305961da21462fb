package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/internal/shared/metrics"
	"github.com/radieske/friendsbet/internal/wager-service/dto"
	"github.com/radieske/friendsbet/internal/wagering/betbook"
	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/registry"
	"github.com/radieske/friendsbet/pkg/contracts/events"
)

// Ledger is the account side of the API.
type Ledger interface {
	OpenAccount(ctx context.Context, userID string, initialBalance int64) (domain.User, error)
	BalanceOf(ctx context.Context, userID string) (int64, error)
	TopUp(ctx context.Context, userID string, amount int64, ref string) (int64, error)
	Entries(ctx context.Context, userID string) ([]domain.LedgerEntry, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error)
}

// Registry is the event side of the API.
type Registry interface {
	CreateEvent(ctx context.Context, title string, outcomes []registry.OutcomeSpec, approved bool) (string, error)
	Approve(ctx context.Context, eventID string) error
	DeletePending(ctx context.Context, eventID string) error
	Get(ctx context.Context, eventID string) (domain.Event, error)
	List(ctx context.Context, status domain.EventStatus) ([]domain.Event, error)
}

type BetBook interface {
	PlaceBet(ctx context.Context, userID, eventID, outcomeID string, amount int64) (string, error)
	BetsForEvent(ctx context.Context, eventID string) ([]domain.Bet, error)
	BetsForUser(ctx context.Context, userID string) ([]domain.Bet, error)
	AllBets(ctx context.Context, f betbook.Filter) ([]domain.Bet, error)
}

// Settlement resolves events and reads stored reports.
type Settlement interface {
	Resolve(ctx context.Context, eventID, winningOutcomeID string, resolvedAt time.Time) (domain.SettlementReport, error)
	Report(ctx context.Context, eventID string) (domain.SettlementReport, error)
}

// Publisher emits domain events after their transaction commits.
type Publisher interface {
	PublishEventCreated(ctx context.Context, e events.EventCreated) error
	PublishEventApproved(ctx context.Context, e events.EventApproved) error
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
	PublishEventResolved(ctx context.Context, e events.EventResolved) error
}

type EventCache interface {
	GetEvent(ctx context.Context, eventID string, dst any) (bool, error)
	SetEvent(ctx context.Context, eventID string, v any) error
	Invalidate(ctx context.Context, eventID string) error
}

// ActivityReader lists the newest rows of the activity feed.
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]events.ActivityUpdate, error)
}

// Deps wires the server. Publisher, Cache, Activity and WS are optional.
type Deps struct {
	Log             *zap.Logger
	Metrics         *metrics.Wager
	Ledger          Ledger
	Events          Registry
	Bets            BetBook
	Settlement      Settlement
	Publisher       Publisher
	Cache           EventCache
	Activity        ActivityReader
	WS              http.HandlerFunc
	StartingBalance int64
}

// Server exposes the wagering core over HTTP. It adds no authorization: callers
// are trusted.
type Server struct {
	Deps
	validate *validator.Validate
}

// NewServer defaults a nil Log to a no-op logger.
func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Server{Deps: d, validate: validator.New()}
}

// Router mounts the /v1 API and, when WS is set, the websocket endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", s.createUser)
		r.Get("/users/{id}/balance", s.getBalance)
		r.Post("/users/{id}/topup", s.topUp)
		r.Get("/users/{id}/ledger", s.ledgerEntries)
		r.Get("/users/{id}/bets", s.userBets)

		r.Post("/events", s.createEvent)
		r.Get("/events", s.listEvents)
		r.Get("/events/{id}", s.getEvent)
		r.Delete("/events/{id}", s.deleteEvent)
		r.Post("/events/{id}/approve", s.approveEvent)
		r.Post("/events/{id}/resolve", s.resolveEvent)
		r.Get("/events/{id}/bets", s.eventBets)
		r.Get("/events/{id}/settlement", s.settlementReport)

		r.Post("/bets", s.placeBet)
		r.Get("/bets", s.allBets)

		r.Get("/leaderboard", s.leaderboard)
		r.Get("/activity", s.activity)
	})
	if s.WS != nil {
		r.Get("/ws", s.WS)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

// fail maps core errors onto HTTP statuses. Storage faults are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrEventNotOpen),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrNotPending),
		errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrSupplyExceeded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOutcomeSet),
		errors.Is(err, domain.ErrUnknownOutcome),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrSettlementNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStorageFault),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst and runs its validate tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// afterCommit runs fn with a context detached from the request so a client that
// hangs up does not cancel publishing of an already committed change.
func afterCommit(r *http.Request, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 3*time.Second)
	defer cancel()
	fn(ctx)
}

func (s *Server) published(topic string, err error) {
	if err == nil {
		return
	}
	s.Log.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	if s.Metrics != nil {
		s.Metrics.PublishFailures.WithLabelValues(topic).Inc()
	}
}

func (s *Server) invalidate(ctx context.Context, eventID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, eventID); err != nil {
		s.Log.Warn("event cache invalidate failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

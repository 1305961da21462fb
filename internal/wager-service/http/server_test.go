package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/radieske/friendsbet/internal/shared/metrics"
	"github.com/radieske/friendsbet/internal/wager-service/dto"
	"github.com/radieske/friendsbet/internal/wagering/betbook"
	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/ledger"
	"github.com/radieske/friendsbet/internal/wagering/registry"
	"github.com/radieske/friendsbet/internal/wagering/settlement"
	"github.com/radieske/friendsbet/internal/wagering/storage/sqlite"
	"github.com/radieske/friendsbet/pkg/contracts/events"
)

type recordingPublisher struct {
	mu       sync.Mutex
	created  []events.EventCreated
	approved []events.EventApproved
	placed   []events.BetPlaced
	resolved []events.EventResolved
}

func (p *recordingPublisher) PublishEventCreated(_ context.Context, e events.EventCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishEventApproved(_ context.Context, e events.EventApproved) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approved = append(p.approved, e)
	return nil
}

func (p *recordingPublisher) PublishBetPlaced(_ context.Context, e events.BetPlaced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return nil
}

func (p *recordingPublisher) PublishEventResolved(_ context.Context, e events.EventResolved) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, e)
	return nil
}

type mapCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (c *mapCache) GetEvent(_ context.Context, id string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.items[id]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) SetEvent(_ context.Context, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = b
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	return nil
}

type harness struct {
	srv     *httptest.Server
	pub     *recordingPublisher
	cache   *mapCache
	metrics *metrics.Wager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	l := ledger.New(store, nil)
	r := registry.New(store, nil)
	b := betbook.New(store, r, l, nil)
	h := &harness{
		pub:     &recordingPublisher{},
		cache:   &mapCache{items: map[string][]byte{}},
		metrics: metrics.NewWager(prometheus.NewRegistry()),
	}
	s := NewServer(Deps{
		Metrics:         h.metrics,
		Ledger:          l,
		Events:          r,
		Bets:            b,
		Settlement:      settlement.New(store, r, b, l, nil),
		Publisher:       h.pub,
		Cache:           h.cache,
		StartingBalance: 1000,
	})
	h.srv = httptest.NewServer(s.Router())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) mustDo(t *testing.T, method, path string, body any, out any, want int) {
	t.Helper()
	if got := h.do(t, method, path, body, out); got != want {
		t.Fatalf("%s %s = %d, want %d", method, path, got, want)
	}
}

func (h *harness) openEvent(t *testing.T) domain.Event {
	t.Helper()
	var created dto.CreateEventResponse
	h.mustDo(t, http.MethodPost, "/v1/events", map[string]any{
		"title":    "Who wins the derby?",
		"approved": true,
		"outcomes": []map[string]any{{"name": "Home", "odds": "2.0"}, {"name": "Away", "odds": 2}},
	}, &created, http.StatusCreated)
	var ev domain.Event
	h.mustDo(t, http.MethodGet, "/v1/events/"+created.EventID, nil, &ev, http.StatusOK)
	return ev
}

func TestBetAndSettleFlow(t *testing.T) {
	h := newHarness(t)
	for _, u := range []string{"alice", "bob", "carol"} {
		h.mustDo(t, http.MethodPost, "/v1/users", dto.CreateUserRequest{UserID: u}, nil, http.StatusCreated)
	}
	ev := h.openEvent(t)
	home, away := ev.Outcomes[0].ID, ev.Outcomes[1].ID

	h.mustDo(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "alice", EventID: ev.ID, OutcomeID: home, Amount: 100}, nil, http.StatusCreated)
	h.mustDo(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "bob", EventID: ev.ID, OutcomeID: home, Amount: 200}, nil, http.StatusCreated)
	h.mustDo(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "carol", EventID: ev.ID, OutcomeID: away, Amount: 300}, nil, http.StatusCreated)

	var report domain.SettlementReport
	h.mustDo(t, http.MethodPost, "/v1/events/"+ev.ID+"/resolve", dto.ResolveRequest{WinningOutcomeID: home}, &report, http.StatusOK)
	if report.Pot != 600 || report.TotalPaidOut != 600 || report.WinnerCount != 2 || report.Remainder != 0 {
		t.Fatalf("report = %+v", report)
	}

	for user, want := range map[string]int64{"alice": 1100, "bob": 1200, "carol": 700} {
		var bal dto.BalanceResponse
		h.mustDo(t, http.MethodGet, "/v1/users/"+user+"/balance", nil, &bal, http.StatusOK)
		if bal.Balance != want {
			t.Fatalf("%s balance = %d, want %d", user, bal.Balance, want)
		}
	}

	var stored domain.SettlementReport
	h.mustDo(t, http.MethodGet, "/v1/events/"+ev.ID+"/settlement", nil, &stored, http.StatusOK)
	if stored.TotalPaidOut != 600 || len(stored.Payouts) != 2 {
		t.Fatalf("stored report = %+v", stored)
	}

	// the cached OPEN copy was dropped on resolve
	var after domain.Event
	h.mustDo(t, http.MethodGet, "/v1/events/"+ev.ID, nil, &after, http.StatusOK)
	if after.Status != domain.EventResolved {
		t.Fatalf("event status after resolve = %s", after.Status)
	}

	h.pub.mu.Lock()
	defer h.pub.mu.Unlock()
	if len(h.pub.created) != 1 || len(h.pub.placed) != 3 || len(h.pub.resolved) != 1 {
		t.Fatalf("published created=%d placed=%d resolved=%d", len(h.pub.created), len(h.pub.placed), len(h.pub.resolved))
	}
	if h.pub.placed[0].LockedOdds != "2" {
		t.Fatalf("locked odds = %q, want 2", h.pub.placed[0].LockedOdds)
	}
	if got := testutil.ToFloat64(h.metrics.BetsPlaced); got != 3 {
		t.Fatalf("bets placed metric = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.CreditsPaid); got != 600 {
		t.Fatalf("credits paid metric = %v", got)
	}
}

func TestErrorStatuses(t *testing.T) {
	h := newHarness(t)
	h.mustDo(t, http.MethodPost, "/v1/users", map[string]any{"userId": "dan", "initialBalance": 50}, nil, http.StatusCreated)
	ev := h.openEvent(t)
	home := ev.Outcomes[0].ID

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"duplicate user", http.MethodPost, "/v1/users", dto.CreateUserRequest{UserID: "dan"}, http.StatusConflict},
		{"unknown user balance", http.MethodGet, "/v1/users/nobody/balance", nil, http.StatusNotFound},
		{"insufficient funds", http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "dan", EventID: ev.ID, OutcomeID: home, Amount: 51}, http.StatusConflict},
		{"unknown outcome", http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "dan", EventID: ev.ID, OutcomeID: "nope", Amount: 5}, http.StatusUnprocessableEntity},
		{"unknown event", http.MethodGet, "/v1/events/nope", nil, http.StatusNotFound},
		{"zero amount fails validation", http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "dan", EventID: ev.ID, OutcomeID: home}, http.StatusBadRequest},
		{"empty outcome set", http.MethodPost, "/v1/events", map[string]any{"title": "x", "outcomes": []map[string]any{}}, http.StatusUnprocessableEntity},
		{"duplicate outcome names", http.MethodPost, "/v1/events", map[string]any{"title": "x", "outcomes": []map[string]any{{"name": "Yes", "odds": "1.5"}, {"name": "yes", "odds": "2"}}}, http.StatusUnprocessableEntity},
		{"unknown field", http.MethodPost, "/v1/users", map[string]any{"userId": "eve", "admin": true}, http.StatusBadRequest},
		{"report before resolve", http.MethodGet, "/v1/events/" + ev.ID + "/settlement", nil, http.StatusNotFound},
		{"delete open event", http.MethodDelete, "/v1/events/" + ev.ID, nil, http.StatusConflict},
		{"bad status filter", http.MethodGet, "/v1/events?status=closed", nil, http.StatusUnprocessableEntity},
		{"bad date", http.MethodGet, "/v1/bets?from=yesterday", nil, http.StatusBadRequest},
		{"no activity reader", http.MethodGet, "/v1/activity", nil, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := h.do(t, tc.method, tc.path, tc.body, nil); got != tc.want {
				t.Fatalf("%s %s = %d, want %d", tc.method, tc.path, got, tc.want)
			}
		})
	}

	if got := testutil.ToFloat64(h.metrics.BetRejections.WithLabelValues("insufficient_funds")); got != 1 {
		t.Fatalf("insufficient funds rejections = %v", got)
	}
}

func TestResolveTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	ev := h.openEvent(t)
	path := "/v1/events/" + ev.ID + "/resolve"
	h.mustDo(t, http.MethodPost, path, dto.ResolveRequest{WinningOutcomeID: ev.Outcomes[0].ID}, nil, http.StatusOK)
	h.mustDo(t, http.MethodPost, path, dto.ResolveRequest{WinningOutcomeID: ev.Outcomes[1].ID}, nil, http.StatusConflict)
}

func TestApproveAndDeletePending(t *testing.T) {
	h := newHarness(t)
	outcomes := []map[string]any{{"name": "Yes", "odds": "1.5"}, {"name": "No", "odds": "2.5"}}

	var first, second dto.CreateEventResponse
	h.mustDo(t, http.MethodPost, "/v1/events", map[string]any{"title": "first", "outcomes": outcomes}, &first, http.StatusCreated)
	h.mustDo(t, http.MethodPost, "/v1/events", map[string]any{"title": "second", "outcomes": outcomes}, &second, http.StatusCreated)
	if first.Status != string(domain.EventPendingApproval) {
		t.Fatalf("status = %s, want pending", first.Status)
	}

	var pending []domain.Event
	h.mustDo(t, http.MethodGet, "/v1/events?status=pending", nil, &pending, http.StatusOK)
	if len(pending) != 2 {
		t.Fatalf("pending events = %d, want 2", len(pending))
	}

	h.mustDo(t, http.MethodPost, "/v1/events/"+first.EventID+"/approve", nil, nil, http.StatusOK)
	h.mustDo(t, http.MethodPost, "/v1/events/"+first.EventID+"/approve", nil, nil, http.StatusConflict)
	h.mustDo(t, http.MethodDelete, "/v1/events/"+second.EventID, nil, nil, http.StatusNoContent)
	h.mustDo(t, http.MethodGet, "/v1/events/"+second.EventID, nil, nil, http.StatusNotFound)

	var open []domain.Event
	h.mustDo(t, http.MethodGet, "/v1/events?status=open", nil, &open, http.StatusOK)
	if len(open) != 1 || open[0].ID != first.EventID {
		t.Fatalf("open events = %+v", open)
	}
}

func TestEventCacheServesRepeatReads(t *testing.T) {
	h := newHarness(t)
	ev := h.openEvent(t)
	h.mustDo(t, http.MethodGet, "/v1/events/"+ev.ID, nil, nil, http.StatusOK)

	if got := testutil.ToFloat64(h.metrics.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Fatalf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.CacheLookups.WithLabelValues("miss")); got != 1 {
		t.Fatalf("cache misses = %v, want 1", got)
	}
}

func TestLeaderboardAndTopUp(t *testing.T) {
	h := newHarness(t)
	h.mustDo(t, http.MethodPost, "/v1/users", dto.CreateUserRequest{UserID: "a"}, nil, http.StatusCreated)
	h.mustDo(t, http.MethodPost, "/v1/users", dto.CreateUserRequest{UserID: "b"}, nil, http.StatusCreated)

	var bal dto.BalanceResponse
	h.mustDo(t, http.MethodPost, "/v1/users/b/topup", dto.TopUpRequest{Amount: 5, Ref: "gift"}, &bal, http.StatusOK)
	if bal.Balance != 1005 {
		t.Fatalf("balance after top-up = %d", bal.Balance)
	}

	var rows []domain.LeaderboardRow
	h.mustDo(t, http.MethodGet, "/v1/leaderboard?limit=10", nil, &rows, http.StatusOK)
	if len(rows) != 2 || rows[0].UserID != "b" {
		t.Fatalf("leaderboard = %+v", rows)
	}

	var entries []domain.LedgerEntry
	h.mustDo(t, http.MethodGet, "/v1/users/b/ledger", nil, &entries, http.StatusOK)
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
}

type failingActivity struct{}

func (failingActivity) Recent(context.Context, int) ([]events.ActivityUpdate, error) {
	return nil, &domain.StorageError{Op: "activity recent", Err: errors.New("connection refused")}
}

func TestActivityFeedStorageFailureIsUnavailable(t *testing.T) {
	s := NewServer(Deps{Activity: failingActivity{}})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activity", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestTopUpPastSupplyCeilingConflicts(t *testing.T) {
	h := newHarness(t)
	h.mustDo(t, http.MethodPost, "/v1/users", dto.CreateUserRequest{UserID: "a"}, nil, http.StatusCreated)
	h.mustDo(t, http.MethodPost, "/v1/users/a/topup", dto.TopUpRequest{Amount: math.MaxInt64}, nil, http.StatusConflict)

	var bal dto.BalanceResponse
	h.mustDo(t, http.MethodGet, "/v1/users/a/balance", nil, &bal, http.StatusOK)
	if bal.Balance != 1000 {
		t.Fatalf("balance = %d, want 1000", bal.Balance)
	}
}

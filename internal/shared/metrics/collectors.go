package metrics

import "github.com/prometheus/client_golang/prometheus"

// Wager holds the wager-service collectors.
type Wager struct {
	BetsPlaced      prometheus.Counter
	BetRejections   *prometheus.CounterVec // reason
	StakedCredits   prometheus.Counter
	Settlements     *prometheus.CounterVec // kind: paid | forfeited
	CreditsPaid     prometheus.Counter
	RoundingLeak    prometheus.Counter
	PublishFailures *prometheus.CounterVec // topic
	CacheLookups    *prometheus.CounterVec // result: hit | miss | error
}

// NewWager registers the wager-service collectors on reg.
func NewWager(reg prometheus.Registerer) *Wager {
	m := &Wager{
		BetsPlaced:      prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_bets_placed_total", Help: "bets accepted"}),
		BetRejections:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_bet_rejections_total", Help: "bets rejected by reason"}, []string{"reason"}),
		StakedCredits:   prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_staked_credits_total", Help: "credits moved into event pools"}),
		Settlements:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_settlements_total", Help: "events resolved"}, []string{"kind"}),
		CreditsPaid:     prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_credits_paid_total", Help: "credits paid to winners"}),
		RoundingLeak:    prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_rounding_leak_total", Help: "credits lost to payout truncation or forfeiture"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_publish_failures_total", Help: "domain events not published"}, []string{"topic"}),
		CacheLookups:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_event_cache_lookups_total", Help: "event cache lookups"}, []string{"result"}),
	}
	reg.MustRegister(m.BetsPlaced, m.BetRejections, m.StakedCredits, m.Settlements, m.CreditsPaid, m.RoundingLeak, m.PublishFailures, m.CacheLookups)
	return m
}

// Worker holds the activity-worker collectors.
type Worker struct {
	Consumed  prometheus.Counter
	Persisted prometheus.Counter
	Broadcast prometheus.Counter
	Errors    *prometheus.CounterVec // stage
}

// NewWorker registers the activity-worker collectors on reg.
func NewWorker(reg prometheus.Registerer) *Worker {
	m := &Worker{
		Consumed:  prometheus.NewCounter(prometheus.CounterOpts{Name: "activity_messages_consumed_total", Help: "messages consumed"}),
		Persisted: prometheus.NewCounter(prometheus.CounterOpts{Name: "activity_rows_written_total", Help: "activity rows written"}),
		Broadcast: prometheus.NewCounter(prometheus.CounterOpts{Name: "activity_broadcasts_total", Help: "updates published to redis"}),
		Errors:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "activity_errors_total", Help: "errors by stage"}, []string{"stage"}),
	}
	reg.MustRegister(m.Consumed, m.Persisted, m.Broadcast, m.Errors)
	return m
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/pkg/contracts/events"
)

type memRepo struct {
	rows []events.ActivityUpdate
	err  error
	// failures makes the next n inserts fail
	failures int
}

func (r *memRepo) Insert(_ context.Context, a events.ActivityUpdate) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.failures > 0 {
		r.failures--
		return 0, errors.New("db down")
	}
	r.rows = append(r.rows, a)
	return int64(len(r.rows)), nil
}

type memPub struct {
	sent []events.ActivityUpdate
	err  error
}

func (p *memPub) Broadcast(_ context.Context, a events.ActivityUpdate) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, a)
	return nil
}

var testTopics = Topics{
	EventCreated:  "wager_event_created",
	EventApproved: "wager_event_approved",
	BetPlaced:     "wager_bet_placed",
	EventResolved: "wager_event_resolved",
}

func newProcessor(repo *memRepo, pub *memPub, stages *[]string) *Processor {
	return &Processor{
		Log:     zap.NewNop(),
		Repo:    repo,
		Pub:     pub,
		Topics:  testTopics,
		OnError: func(stage string) { *stages = append(*stages, stage) },
	}
}

func message(t *testing.T, topic string, v any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Topic: topic, Value: b, Time: time.Unix(100, 0)}
}

func TestHandleDescribesEachTopic(t *testing.T) {
	cases := []struct {
		name      string
		msg       kafka.Message
		wantEvent string
		wantUser  string
		contains  string
	}{
		{
			name:      "event created",
			msg:       message(t, testTopics.EventCreated, events.EventCreated{EventID: "ev", Title: "Derby", Status: "PENDING_APPROVAL", Outcomes: make([]events.Outcome, 2)}),
			wantEvent: "ev",
			contains:  "awaiting approval",
		},
		{
			name:      "event approved",
			msg:       message(t, testTopics.EventApproved, events.EventApproved{EventID: "ev"}),
			wantEvent: "ev",
			contains:  "open for betting",
		},
		{
			name:      "bet placed",
			msg:       message(t, testTopics.BetPlaced, events.BetPlaced{EventID: "ev", UserID: "alice", Amount: 40, LockedOdds: "2.5"}),
			wantEvent: "ev",
			wantUser:  "alice",
			contains:  "alice staked 40 at odds 2.5",
		},
		{
			name:      "paid resolution",
			msg:       message(t, testTopics.EventResolved, events.EventResolved{EventID: "ev", Pot: 600, WinnerCount: 2, TotalPaidOut: 600}),
			wantEvent: "ev",
			contains:  "2 winners shared 600",
		},
		{
			name:      "forfeited resolution",
			msg:       message(t, testTopics.EventResolved, events.EventResolved{EventID: "ev", Pot: 90, Forfeited: true}),
			wantEvent: "ev",
			contains:  "pot of 90 forfeited",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, pub := &memRepo{}, &memPub{}
			var stages []string
			p := newProcessor(repo, pub, &stages)

			if err := p.Handle(context.Background(), tc.msg); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(repo.rows) != 1 || len(pub.sent) != 1 {
				t.Fatalf("rows=%d sent=%d, want 1 each", len(repo.rows), len(pub.sent))
			}
			got := pub.sent[0]
			if got.ID != 1 || got.Kind != tc.msg.Topic {
				t.Fatalf("broadcast id=%d kind=%s", got.ID, got.Kind)
			}
			if got.EventID != tc.wantEvent || got.UserID != tc.wantUser {
				t.Fatalf("event=%q user=%q", got.EventID, got.UserID)
			}
			if !strings.Contains(got.Message, tc.contains) {
				t.Fatalf("message %q does not contain %q", got.Message, tc.contains)
			}
			if !got.OccurredAt.Equal(time.Unix(100, 0)) {
				t.Fatalf("occurred at %v, want message time", got.OccurredAt)
			}
			if len(stages) != 0 {
				t.Fatalf("unexpected errors %v", stages)
			}
		})
	}
}

func TestHandlePrefersProducerTimestamp(t *testing.T) {
	repo, pub := &memRepo{}, &memPub{}
	var stages []string
	p := newProcessor(repo, pub, &stages)

	msg := message(t, testTopics.EventApproved, events.EventApproved{EventID: "ev", TsUnixMs: 5000})
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !repo.rows[0].OccurredAt.Equal(time.UnixMilli(5000)) {
		t.Fatalf("occurred at %v", repo.rows[0].OccurredAt)
	}
}

func TestHandleFailures(t *testing.T) {
	t.Run("unknown topic", func(t *testing.T) {
		repo, pub := &memRepo{}, &memPub{}
		var stages []string
		p := newProcessor(repo, pub, &stages)
		err := p.Handle(context.Background(), kafka.Message{Topic: "other", Value: []byte(`{}`)})
		if !errors.Is(err, errUnknownTopic) || !errors.Is(err, errUndecodable) {
			t.Fatalf("err = %v", err)
		}
		if len(repo.rows) != 0 || len(stages) != 1 || stages[0] != "decode" {
			t.Fatalf("rows=%d stages=%v", len(repo.rows), stages)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		repo, pub := &memRepo{}, &memPub{}
		var stages []string
		p := newProcessor(repo, pub, &stages)
		err := p.Handle(context.Background(), kafka.Message{Topic: testTopics.BetPlaced, Value: []byte(`{`)})
		if !errors.Is(err, errUndecodable) {
			t.Fatalf("err = %v, want undecodable", err)
		}
		if len(stages) != 1 || stages[0] != "decode" {
			t.Fatalf("stages = %v", stages)
		}
	})

	t.Run("insert fails skips broadcast", func(t *testing.T) {
		repo, pub := &memRepo{err: errors.New("db down")}, &memPub{}
		var stages []string
		p := newProcessor(repo, pub, &stages)
		msg := message(t, testTopics.EventApproved, events.EventApproved{EventID: "ev"})
		err := p.Handle(context.Background(), msg)
		if err == nil || errors.Is(err, errUndecodable) {
			t.Fatalf("err = %v, want a retryable insert error", err)
		}
		if len(pub.sent) != 0 || len(stages) != 1 || stages[0] != "db_insert" {
			t.Fatalf("sent=%d stages=%v", len(pub.sent), stages)
		}
	})

	t.Run("broadcast failure keeps row", func(t *testing.T) {
		repo, pub := &memRepo{}, &memPub{err: errors.New("redis down")}
		var stages []string
		p := newProcessor(repo, pub, &stages)
		msg := message(t, testTopics.EventApproved, events.EventApproved{EventID: "ev"})
		if err := p.Handle(context.Background(), msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if len(repo.rows) != 1 || len(stages) != 1 || stages[0] != "broadcast" {
			t.Fatalf("rows=%d stages=%v", len(repo.rows), stages)
		}
	})
}

type scriptedReader struct {
	msgs      []kafka.Message
	committed []int64
	stop      context.CancelFunc
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.stop()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func at(m kafka.Message, offset int64) kafka.Message {
	m.Offset = offset
	return m
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, pub := &memRepo{}, &memPub{}
	var stages []string
	p := newProcessor(repo, pub, &stages)
	consumed := 0
	p.OnConsumed = func() { consumed++ }
	reader := &scriptedReader{
		stop: cancel,
		msgs: []kafka.Message{
			at(message(t, testTopics.EventApproved, events.EventApproved{EventID: "a"}), 1),
			{Topic: "other", Value: []byte(`{}`), Offset: 2},
			at(message(t, testTopics.EventApproved, events.EventApproved{EventID: "b"}), 3),
		},
	}
	p.Reader = reader

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run = %v, want context.Canceled", err)
	}
	if consumed != 3 || len(repo.rows) != 2 {
		t.Fatalf("consumed=%d rows=%d", consumed, len(repo.rows))
	}
	// the undecodable message is committed so it cannot block the partition
	if len(reader.committed) != 3 {
		t.Fatalf("committed = %v, want all three offsets", reader.committed)
	}
}

func TestRunRetriesInsertBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, pub := &memRepo{failures: 2}, &memPub{}
	var stages []string
	p := newProcessor(repo, pub, &stages)
	p.RetryBackoff = time.Millisecond
	reader := &scriptedReader{
		stop: cancel,
		msgs: []kafka.Message{at(message(t, testTopics.EventApproved, events.EventApproved{EventID: "a"}), 7)},
	}
	p.Reader = reader

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run = %v, want context.Canceled", err)
	}
	if len(repo.rows) != 1 || len(pub.sent) != 1 {
		t.Fatalf("rows=%d sent=%d, want 1 each", len(repo.rows), len(pub.sent))
	}
	if len(stages) != 2 || stages[0] != "db_insert" || stages[1] != "db_insert" {
		t.Fatalf("stages = %v", stages)
	}
	if len(reader.committed) != 1 || reader.committed[0] != 7 {
		t.Fatalf("committed = %v, want [7]", reader.committed)
	}
}

func TestRunDoesNotCommitUnstoredMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, pub := &memRepo{err: errors.New("db down")}, &memPub{}
	p := newProcessor(repo, pub, new([]string))
	p.RetryBackoff = time.Millisecond
	p.OnError = func(string) { cancel() }
	reader := &scriptedReader{
		stop: cancel,
		msgs: []kafka.Message{at(message(t, testTopics.EventApproved, events.EventApproved{EventID: "a"}), 4)},
	}
	p.Reader = reader

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run = %v, want context.Canceled", err)
	}
	if len(reader.committed) != 0 {
		t.Fatalf("committed = %v, want none", reader.committed)
	}
}

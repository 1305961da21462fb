package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/pkg/contracts/events"
)

// MessageReader is a consumer group reader with explicit commits; *kafka.Reader
// satisfies it.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Repo stores activity rows.
type Repo interface {
	Insert(ctx context.Context, a events.ActivityUpdate) (int64, error)
}

// Broadcaster pushes stored rows to live subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, a events.ActivityUpdate) error
}

// Topics maps each consumed topic to the contract it carries.
type Topics struct {
	EventCreated  string
	EventApproved string
	BetPlaced     string
	EventResolved string
}

const (
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

var (
	errUnknownTopic = errors.New("unknown topic")
	// errUndecodable marks messages that no retry can store.
	errUndecodable = errors.New("undecodable message")
)

// Processor turns wagering domain events into activity rows and pushes each row
// to the websocket fan-out channel. An offset is committed only once its row is
// stored or the message is known to be undecodable.
type Processor struct {
	Log    *zap.Logger
	Reader MessageReader
	Repo   Repo
	Pub    Broadcaster
	Topics Topics
	// RetryBackoff is the first wait after a failed insert. It doubles up to 30s.
	RetryBackoff time.Duration

	OnConsumed  func()
	OnPersist   func()
	OnBroadcast func()
	OnError     func(stage string)
}

// Run consumes until ctx is cancelled. Messages are handled one at a time, in
// partition order.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.fail("read")
			if err := sleep(ctx, defaultRetryBackoff); err != nil {
				return err
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		if err := p.process(ctx, m); err != nil {
			return err
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed",
				zap.String("topic", m.Topic),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			p.fail("commit")
		}
	}
}

// process retries m until its row is stored, it proves undecodable, or ctx ends.
func (p *Processor) process(ctx context.Context, m kafka.Message) error {
	backoff := p.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	for {
		err := p.Handle(ctx, m)
		if err == nil {
			return nil
		}
		if errors.Is(err, errUndecodable) {
			p.Log.Warn("activity skipped",
				zap.String("topic", m.Topic),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			return nil
		}
		p.Log.Warn("activity insert failed, retrying",
			zap.String("topic", m.Topic),
			zap.Int64("offset", m.Offset),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handle processes one message. A failed broadcast is logged but not returned:
// the row is already stored and clients can read it from the feed.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	a, err := p.describe(m)
	if err != nil {
		p.fail("decode")
		return fmt.Errorf("%w: %w", errUndecodable, err)
	}

	id, err := p.Repo.Insert(ctx, a)
	if err != nil {
		p.fail("db_insert")
		return fmt.Errorf("insert activity: %w", err)
	}
	a.ID = id
	if p.OnPersist != nil {
		p.OnPersist()
	}

	if err := p.Pub.Broadcast(ctx, a); err != nil {
		p.Log.Warn("redis publish failed", zap.Int64("activity_id", id), zap.Error(err))
		p.fail("broadcast")
		return nil
	}
	if p.OnBroadcast != nil {
		p.OnBroadcast()
	}
	return nil
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func (p *Processor) describe(m kafka.Message) (events.ActivityUpdate, error) {
	a := events.ActivityUpdate{Kind: m.Topic, Payload: json.RawMessage(m.Value)}
	var ts int64

	switch m.Topic {
	case p.Topics.EventCreated:
		var e events.EventCreated
		if err := json.Unmarshal(m.Value, &e); err != nil {
			return a, err
		}
		a.EventID, ts = e.EventID, e.TsUnixMs
		a.Message = fmt.Sprintf("New event %q with %d outcomes", e.Title, len(e.Outcomes))
		if e.Status == "PENDING_APPROVAL" {
			a.Message += ", awaiting approval"
		}
	case p.Topics.EventApproved:
		var e events.EventApproved
		if err := json.Unmarshal(m.Value, &e); err != nil {
			return a, err
		}
		a.EventID, ts = e.EventID, e.TsUnixMs
		a.Message = fmt.Sprintf("Event %s is open for betting", e.EventID)
	case p.Topics.BetPlaced:
		var e events.BetPlaced
		if err := json.Unmarshal(m.Value, &e); err != nil {
			return a, err
		}
		a.EventID, a.UserID, ts = e.EventID, e.UserID, e.TsUnixMs
		a.Message = fmt.Sprintf("%s staked %d at odds %s", e.UserID, e.Amount, e.LockedOdds)
	case p.Topics.EventResolved:
		var e events.EventResolved
		if err := json.Unmarshal(m.Value, &e); err != nil {
			return a, err
		}
		a.EventID, ts = e.EventID, e.TsUnixMs
		if e.Forfeited {
			a.Message = fmt.Sprintf("Event %s resolved with no winning bets, pot of %d forfeited", e.EventID, e.Pot)
		} else {
			a.Message = fmt.Sprintf("Event %s resolved, %d winners shared %d of a %d pot", e.EventID, e.WinnerCount, e.TotalPaidOut, e.Pot)
		}
	default:
		return a, fmt.Errorf("%w %q", errUnknownTopic, m.Topic)
	}

	switch {
	case ts > 0:
		a.OccurredAt = time.UnixMilli(ts).UTC()
	case !m.Time.IsZero():
		a.OccurredAt = m.Time.UTC()
	default:
		a.OccurredAt = time.Now().UTC()
	}
	return a, nil
}

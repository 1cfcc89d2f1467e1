package sse

import (
	"context"
	"log/slog"
	"time"

	"github.com/phishguard/gateway/internal/db"
)

// PollInterval is the delay between activity log polls on one subscription.
const PollInterval = 2 * time.Second

// ActivityLog is the read side of the activity store. LatestThreat returns the
// newest threat for principalID with a sequence above afterSeq (0 = any), or
// (nil, nil) when there is none.
type ActivityLog interface {
	LatestThreat(ctx context.Context, principalID string, afterSeq int64) (*db.ActivityEvent, error)
}

// Cursor is the last event emitted on one subscription. It lives only as long
// as the subscription.
type Cursor struct {
	ActivityID string
	Seq        int64
}

// IsSet reports whether anything has been emitted yet.
func (c Cursor) IsSet() bool { return c.ActivityID != "" }

// ThreatAlert is the payload of a new_threat message.
type ThreatAlert struct {
	Type        string    `json:"type"`
	ActivityID  string    `json:"activity_id"`
	URLRef      string    `json:"url_ref"`
	ThreatType  string    `json:"threat_type"`
	ThreatLevel string    `json:"threat_level"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// Message is one item on a subscription. A nil Alert is a heartbeat.
type Message struct {
	Alert *ThreatAlert
}

// Heartbeat reports whether m carries no event.
func (m Message) Heartbeat() bool { return m.Alert == nil }

// Sink receives messages for one subscriber. A Send error ends the subscription.
type Sink interface {
	Send(Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Message) error

func (f SinkFunc) Send(m Message) error { return f(m) }

// Publisher runs one poll loop per subscriber. Subscriptions share nothing but
// the activity log handle.
type Publisher struct {
	log      ActivityLog
	interval time.Duration
	logger   *slog.Logger
}

// NewPublisher creates a publisher. A non-positive interval means PollInterval.
func NewPublisher(log ActivityLog, interval time.Duration, logger *slog.Logger) *Publisher {
	if interval <= 0 {
		interval = PollInterval
	}
	return &Publisher{log: log, interval: interval, logger: logger}
}

// Run polls for principalID every interval and sends exactly one message per
// cycle: the newest unseen threat, or a heartbeat. It returns when ctx is
// cancelled or the sink fails, and leaves nothing running behind it.
func (p *Publisher) Run(ctx context.Context, principalID string, sink Sink) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var cur Cursor
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		// select picks randomly when both are ready.
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := p.poll(ctx, principalID, &cur)
		if err := sink.Send(msg); err != nil {
			p.logger.Debug("stream: subscriber gone", "principal_id", principalID, "err", err)
			return err
		}
	}
}

func (p *Publisher) poll(ctx context.Context, principalID string, cur *Cursor) Message {
	ev, err := p.log.LatestThreat(ctx, principalID, cur.Seq)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("stream: activity log query failed", "principal_id", principalID, "err", err)
		}
		return Message{}
	}
	if ev == nil || ev.ActivityID == cur.ActivityID {
		return Message{}
	}

	cur.ActivityID = ev.ActivityID
	cur.Seq = ev.Seq
	return Message{Alert: &ThreatAlert{
		Type:        "new_threat",
		ActivityID:  ev.ActivityID,
		URLRef:      ev.URLRef,
		ThreatType:  ev.ThreatType,
		ThreatLevel: ev.ThreatLevel,
		Confidence:  ev.Confidence,
		Timestamp:   ev.Timestamp,
	}}
}

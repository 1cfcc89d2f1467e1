package sse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phishguard/gateway/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testInterval  = 5 * time.Millisecond
	testPrincipal = "principal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memLog is an in-memory activity log shared by several principals. Only
// threat events for the queried principal are visible to LatestThreat.
type memLog struct {
	mu      sync.Mutex
	events  []db.ActivityEvent
	fail    bool
	queries atomic.Int32
}

func (m *memLog) record(principal, id string, threat bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := db.ActivityEvent{
		Seq:        int64(len(m.events) + 1),
		ActivityID: id,
		UserID:     principal,
		URLRef:     "ref-" + id,
		IsPhishing: threat,
		Confidence: 0.1,
		Timestamp:  time.Now().UTC(),
	}
	if threat {
		ev.ThreatType = "phishing"
		ev.ThreatLevel = "HIGH"
		ev.Confidence = 0.9
	}
	m.events = append(m.events, ev)
}

// add records a threat for the principal collect subscribes as.
func (m *memLog) add(id string) { m.record(testPrincipal, id, true) }

func (m *memLog) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memLog) LatestThreat(_ context.Context, principalID string, afterSeq int64) (*db.ActivityEvent, error) {
	m.queries.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, db.ErrActivityLogUnavailable
	}
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if ev.Seq <= afterSeq {
			break
		}
		if ev.UserID == principalID && ev.IsPhishing {
			return &ev, nil
		}
	}
	return nil, nil
}

// collect runs a publisher until n messages have been received. hook, if set,
// runs inside Send after each message is recorded.
func collect(t *testing.T, log ActivityLog, n int, hook func(i int, m Message)) []Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Message
	sink := SinkFunc(func(m Message) error {
		got = append(got, m)
		if hook != nil {
			hook(len(got)-1, m)
		}
		if len(got) == n {
			cancel()
		}
		return nil
	})

	err := NewPublisher(log, testInterval, discardLogger()).Run(ctx, testPrincipal, sink)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, n)
	return got
}

func alertIDs(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		if !m.Heartbeat() {
			out[i] = m.Alert.ActivityID
		}
	}
	return out
}

func TestPublisher_EmptyLogHeartbeats(t *testing.T) {
	msgs := collect(t, &memLog{}, 3, nil)
	for _, m := range msgs {
		assert.True(t, m.Heartbeat())
	}
}

func TestPublisher_EmitsNewestThenHeartbeats(t *testing.T) {
	log := &memLog{}
	log.add("a")
	log.add("b")
	log.add("c")

	msgs := collect(t, log, 3, nil)
	assert.Equal(t, []string{"c", "", ""}, alertIDs(msgs))

	first := msgs[0].Alert
	assert.Equal(t, "new_threat", first.Type)
	assert.Equal(t, "ref-c", first.URLRef)
	assert.Equal(t, "phishing", first.ThreatType)
	assert.Equal(t, "HIGH", first.ThreatLevel)
	assert.InDelta(t, 0.9, first.Confidence, 1e-9)
}

func TestPublisher_OneEventPerCycle(t *testing.T) {
	log := &memLog{}
	log.add("e1")

	// Each send appends the next event, so every cycle has exactly one new one.
	next := []string{"e2", "e3"}
	msgs := collect(t, log, 4, func(i int, _ Message) {
		if i < len(next) {
			log.add(next[i])
		}
	})
	assert.Equal(t, []string{"e1", "e2", "e3", ""}, alertIDs(msgs))
}

func TestPublisher_OnlyOwnThreats(t *testing.T) {
	log := &memLog{}
	log.record(testPrincipal, "p-safe-1", false)
	log.record("other", "o-threat-1", true)
	log.record(testPrincipal, "p-threat-1", true)
	log.record(testPrincipal, "p-safe-2", false)
	log.record("other", "o-safe-1", false)

	// Later cycles see a mix of activity; only this principal's threats surface.
	type step struct {
		principal, id string
		threat        bool
	}
	script := [][]step{
		{{testPrincipal, "p-threat-2", true}, {"other", "o-threat-2", true}},
		{{testPrincipal, "p-safe-3", false}},
		{{"other", "o-threat-3", true}, {testPrincipal, "p-threat-3", true}, {testPrincipal, "p-safe-4", false}},
	}
	msgs := collect(t, log, 5, func(i int, _ Message) {
		if i < len(script) {
			for _, s := range script[i] {
				log.record(s.principal, s.id, s.threat)
			}
		}
	})

	// Seven events for the principal, three of them threats.
	assert.Equal(t, []string{"p-threat-1", "p-threat-2", "", "p-threat-3", ""}, alertIDs(msgs))
	for _, m := range msgs {
		if !m.Heartbeat() {
			assert.Equal(t, "HIGH", m.Alert.ThreatLevel)
		}
	}
}

func TestPublisher_NonThreatsNeverEmitted(t *testing.T) {
	log := &memLog{}
	log.record(testPrincipal, "s1", false)
	log.record(testPrincipal, "s2", false)
	log.record("other", "o1", true)

	msgs := collect(t, log, 3, nil)
	assert.Equal(t, []string{"", "", ""}, alertIDs(msgs))
}

func TestPublisher_NoQueriesAfterRunReturns(t *testing.T) {
	log := &memLog{}
	log.add("a")

	msgs := collect(t, log, 3, nil)
	require.Len(t, msgs, 3)
	after := log.queries.Load()
	assert.Equal(t, int32(3), after, "one query per cycle")

	time.Sleep(10 * testInterval)
	assert.Equal(t, after, log.queries.Load(), "nothing polls once the subscription ends")
}

func TestPublisher_QueryFailureIsHeartbeat(t *testing.T) {
	log := &memLog{}
	log.add("a")
	log.setFail(true)

	msgs := collect(t, log, 3, func(i int, _ Message) {
		if i == 1 {
			log.setFail(false)
		}
	})
	assert.Equal(t, []string{"", "", "a"}, alertIDs(msgs))
}

func TestPublisher_SinkErrorEndsRun(t *testing.T) {
	gone := errors.New("broken pipe")
	calls := 0
	sink := SinkFunc(func(Message) error {
		calls++
		return gone
	})

	err := NewPublisher(&memLog{}, testInterval, discardLogger()).Run(context.Background(), "p", sink)
	require.ErrorIs(t, err, gone)
	assert.Equal(t, 1, calls)
}

func TestPublisher_CancelStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewPublisher(&memLog{}, time.Hour, discardLogger()).Run(ctx, "p", SinkFunc(func(Message) error { return nil }))
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewPublisher_DefaultInterval(t *testing.T) {
	p := NewPublisher(&memLog{}, 0, discardLogger())
	assert.Equal(t, PollInterval, p.interval)
}

func TestWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	require.NoError(t, w.Send(Message{}))
	require.NoError(t, w.Send(Message{Alert: &ThreatAlert{Type: "new_threat", ActivityID: "x1"}}))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, ": keepalive\n\n"))
	assert.Contains(t, body, `data: {"type":"new_threat","activity_id":"x1"`)
	assert.True(t, strings.HasSuffix(body, "}\n\n"))
	assert.True(t, rec.Flushed)
}

package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/classify"
	"github.com/guardpost/guardpost/internal/dedup"
	"github.com/guardpost/guardpost/internal/ingest"
	"github.com/guardpost/guardpost/internal/slack"
	"github.com/guardpost/guardpost/internal/token"
	"github.com/guardpost/guardpost/internal/violation"
)

type fakeReplier struct {
	mu      sync.Mutex
	replies []string // "channel|ts" per posted reply
	fail    error
}

func (f *fakeReplier) PostThreadReply(ctx context.Context, channel, ts, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.replies = append(f.replies, channel+"|"+ts)
	return nil
}

func (f *fakeReplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func seedRecord(t *testing.T, store violation.Store, traceID string) string {
	t.Helper()
	err := store.Create(context.Background(), violation.Record{
		TraceID:       traceID,
		Status:        violation.StatusUnprocessed,
		OriginChannel: "C1",
		OriginTS:      "100.1",
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	raw, err := token.New(traceID, "C1", "100.1", "spam", []string{"art-2"}).Encode()
	require.NoError(t, err)
	return raw
}

func TestDispatchApprove(t *testing.T) {
	store := violation.NewMemoryStore()
	replier := &fakeReplier{}
	s := NewService(store, replier, nil)
	raw := seedRecord(t, store, "slack:E1")

	out := s.Dispatch(context.Background(), slack.ActionApprove, raw, "U-admin")
	require.Equal(t, OutcomeConfirmed, out.Kind)
	assert.Equal(t, "slack:E1", out.TraceID)

	rec, err := store.Get(context.Background(), "slack:E1")
	require.NoError(t, err)
	assert.Equal(t, violation.StatusApproved, rec.Status)
	assert.Equal(t, "U-admin", rec.ResponderID)
	require.NotNil(t, rec.DecidedAt)

	require.Equal(t, []string{"C1|100.1"}, replier.replies)
}

func TestDispatchDismissPostsNoReply(t *testing.T) {
	store := violation.NewMemoryStore()
	replier := &fakeReplier{}
	s := NewService(store, replier, nil)
	raw := seedRecord(t, store, "slack:E1")

	out := s.Dispatch(context.Background(), slack.ActionDismiss, raw, "U-admin")
	require.Equal(t, OutcomeConfirmed, out.Kind)

	rec, _ := store.Get(context.Background(), "slack:E1")
	assert.Equal(t, violation.StatusDismissed, rec.Status)
	assert.Equal(t, 0, replier.count())
}

func TestDispatchDuplicatePressAbsorbed(t *testing.T) {
	store := violation.NewMemoryStore()
	replier := &fakeReplier{}
	s := NewService(store, replier, nil)
	raw := seedRecord(t, store, "slack:E1")
	ctx := context.Background()

	first := s.Dispatch(ctx, slack.ActionApprove, raw, "U-one")
	require.Equal(t, OutcomeConfirmed, first.Kind)

	// second press, different admin, different action
	second := s.Dispatch(ctx, slack.ActionDismiss, raw, "U-two")
	require.Equal(t, OutcomeAlreadyHandled, second.Kind)
	assert.Equal(t, violation.StatusApproved, second.Previous)

	rec, _ := store.Get(ctx, "slack:E1")
	assert.Equal(t, violation.StatusApproved, rec.Status)
	assert.Equal(t, "U-one", rec.ResponderID)
	assert.Equal(t, 1, replier.count())
}

// N concurrent presses: exactly one Confirmed, N-1 AlreadyHandled, one reply.
func TestDispatchConcurrentIdempotent(t *testing.T) {
	store := violation.NewMemoryStore()
	replier := &fakeReplier{}
	s := NewService(store, replier, nil)
	raw := seedRecord(t, store, "slack:E1")

	const n = 24
	outcomes := make(chan Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- s.Dispatch(context.Background(), slack.ActionApprove, raw, "U-admin")
		}()
	}
	wg.Wait()
	close(outcomes)

	confirmed, already := 0, 0
	for out := range outcomes {
		switch out.Kind {
		case OutcomeConfirmed:
			confirmed++
		case OutcomeAlreadyHandled:
			already++
		default:
			t.Fatalf("unexpected outcome: %+v", out)
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, n-1, already)
	assert.Equal(t, 1, replier.count())
}

func TestDispatchUnknownAction(t *testing.T) {
	s := NewService(violation.NewMemoryStore(), &fakeReplier{}, nil)
	out := s.Dispatch(context.Background(), "escalate_violation", "{}", "U1")
	require.Equal(t, OutcomeRejected, out.Kind)
	assert.ErrorIs(t, out.Err, ErrUnknownAction)
}

func TestDispatchInvalidToken(t *testing.T) {
	s := NewService(violation.NewMemoryStore(), &fakeReplier{}, nil)
	ctx := context.Background()

	out := s.Dispatch(ctx, slack.ActionApprove, "not json", "U1")
	require.Equal(t, OutcomeRejected, out.Kind)
	assert.ErrorIs(t, out.Err, token.ErrMalformedToken)

	out = s.Dispatch(ctx, slack.ActionApprove, "{}", "U1")
	require.Equal(t, OutcomeRejected, out.Kind)
	assert.ErrorIs(t, out.Err, token.ErrMissingField)

	out = s.Dispatch(ctx, slack.ActionApprove,
		`{"version":"v99","trace_id":"slack:E1","origin_channel":"C1","origin_ts":"1.2"}`, "U1")
	require.Equal(t, OutcomeRejected, out.Kind)
	assert.ErrorIs(t, out.Err, token.ErrUnsupportedVersion)
}

func TestDispatchRecordNotFound(t *testing.T) {
	s := NewService(violation.NewMemoryStore(), &fakeReplier{}, nil)
	raw, err := token.New("slack:gone", "C1", "1.2", "", nil).Encode()
	require.NoError(t, err)

	out := s.Dispatch(context.Background(), slack.ActionApprove, raw, "U1")
	require.Equal(t, OutcomeRejected, out.Kind)
	assert.ErrorIs(t, out.Err, ErrRecordNotFound)
}

// Reply failure does not unwind the applied transition; a retry press
// must not produce a second transition either.
func TestDispatchReplyFailureKeepsTransition(t *testing.T) {
	store := violation.NewMemoryStore()
	replier := &fakeReplier{fail: errors.New("slack down")}
	s := NewService(store, replier, nil)
	raw := seedRecord(t, store, "slack:E1")
	ctx := context.Background()

	out := s.Dispatch(ctx, slack.ActionApprove, raw, "U1")
	require.Equal(t, OutcomeConfirmed, out.Kind)

	rec, _ := store.Get(ctx, "slack:E1")
	assert.Equal(t, violation.StatusApproved, rec.Status)

	again := s.Dispatch(ctx, slack.ActionApprove, raw, "U1")
	assert.Equal(t, OutcomeAlreadyHandled, again.Kind)
}

// Full detection-to-decision flow: ingest a post, approve it, then
// verify a late dismiss press is absorbed.
func TestEndToEndApproveThenDismiss(t *testing.T) {
	store := violation.NewMemoryStore()
	ctx := context.Background()

	notifier := &captureNotifier{}
	ing := ingest.NewService(
		dedup.NewMemoryStore(),
		classify.NewPatternClassifier([]classify.Pattern{{Phrase: "spam", Category: "advertising"}}),
		store, notifier, nil, nil,
	)

	out := ing.Ingest(ctx, ingest.InboundEvent{
		TeamID: "T1", EventID: "E1", Channel: "C1", TS: "100.1", Text: "spam",
	})
	require.Equal(t, ingest.OutcomeCreated, out.Kind)
	require.Equal(t, "slack:E1", out.TraceID)

	rec, err := store.Get(ctx, "slack:E1")
	require.NoError(t, err)
	require.Equal(t, violation.StatusUnprocessed, rec.Status)

	replier := &fakeReplier{}
	disp := NewService(store, replier, nil)

	approved := disp.Dispatch(ctx, slack.ActionApprove, notifier.token, "U-admin")
	require.Equal(t, OutcomeConfirmed, approved.Kind)
	require.Equal(t, "slack:E1", approved.TraceID)
	require.Equal(t, []string{"C1|100.1"}, replier.replies)

	rec, _ = store.Get(ctx, "slack:E1")
	require.Equal(t, violation.StatusApproved, rec.Status)

	dismissed := disp.Dispatch(ctx, slack.ActionDismiss, notifier.token, "U-other")
	require.Equal(t, OutcomeAlreadyHandled, dismissed.Kind)
	require.Equal(t, violation.StatusApproved, dismissed.Previous)
	require.Equal(t, 1, replier.count())

	rec, _ = store.Get(ctx, "slack:E1")
	require.Equal(t, violation.StatusApproved, rec.Status)
}

type captureNotifier struct {
	token string
}

func (c *captureNotifier) NotifyViolation(ctx context.Context, rec violation.Record, encodedToken string) error {
	c.token = encodedToken
	return nil
}

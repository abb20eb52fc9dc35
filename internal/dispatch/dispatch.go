// Package dispatch applies admin button presses to violation records.
// Correctness rests on one property: for a given trace id exactly one
// press observes Applied on the store's compare-and-set, every other
// press (double-click, retry, second admin) is absorbed as
// AlreadyHandled without a second reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guardpost/guardpost/internal/metrics"
	"github.com/guardpost/guardpost/internal/obs"
	"github.com/guardpost/guardpost/internal/slack"
	"github.com/guardpost/guardpost/internal/token"
	"github.com/guardpost/guardpost/internal/violation"
)

var (
	// ErrUnknownAction indicates an action id outside the two recognized ones.
	ErrUnknownAction = errors.New("unknown action id")
	// ErrRecordNotFound indicates the token references a trace id absent
	// from the store. Surfaced loudly: it means data loss or tampering.
	ErrRecordNotFound = errors.New("violation record not found for token")
)

// Outcome kinds.
const (
	OutcomeConfirmed      = "confirmed"
	OutcomeAlreadyHandled = "already_handled"
	OutcomeRejected       = "rejected"
)

// Outcome is the tagged result of one Dispatch call.
type Outcome struct {
	Kind     string
	TraceID  string
	Previous string // prior status when Kind == OutcomeAlreadyHandled
	Err      error  // set when Kind == OutcomeRejected
}

// Replier posts the threaded confirmation back to the original post.
type Replier interface {
	PostThreadReply(ctx context.Context, channel, ts, text string) error
}

// Service applies button presses.
type Service struct {
	store   violation.Store
	replier Replier
	metrics *metrics.Emitter
	nowFunc func() time.Time
}

func NewService(store violation.Store, replier Replier, m *metrics.Emitter) *Service {
	return &Service{
		store:   store,
		replier: replier,
		metrics: m,
		nowFunc: time.Now,
	}
}

// Dispatch decodes the button token and applies the corresponding state
// transition. Safe to call any number of times with the same inputs.
func (s *Service) Dispatch(ctx context.Context, actionID, rawToken, responderID string) Outcome {
	lctx := obs.NewCtx("dispatch")

	var target string
	switch actionID {
	case slack.ActionApprove:
		target = violation.StatusApproved
	case slack.ActionDismiss:
		target = violation.StatusDismissed
	default:
		return Outcome{Kind: OutcomeRejected, Err: fmt.Errorf("%w: %q", ErrUnknownAction, actionID)}
	}

	tok, err := token.Decode(rawToken)
	if err != nil {
		return Outcome{Kind: OutcomeRejected, Err: err}
	}
	lctx = lctx.WithTrace(tok.TraceID)
	lctx.Logf("button_press", "action_id", actionID, "responder", responderID)

	res, err := s.store.ConditionalTransition(ctx, tok.TraceID, target, responderID, s.nowFunc().UTC())
	if err != nil {
		if errors.Is(err, violation.ErrNotFound) {
			lctx.Errorf("transition", ErrRecordNotFound)
			s.metrics.Count(ctx, "record_not_found", 1)
			return Outcome{Kind: OutcomeRejected, TraceID: tok.TraceID, Err: ErrRecordNotFound}
		}
		return Outcome{Kind: OutcomeRejected, TraceID: tok.TraceID, Err: fmt.Errorf("transition: %w", err)}
	}

	if !res.Applied {
		// Expected race: someone else decided first. No reply, no error.
		lctx.Logf("already_handled", "previous", res.Previous)
		return Outcome{Kind: OutcomeAlreadyHandled, TraceID: tok.TraceID, Previous: res.Previous}
	}

	if target == violation.StatusApproved {
		reply := slack.AdvisoryReply(tok.PolicyRefs)
		if err := s.replier.PostThreadReply(ctx, tok.OriginChannel, tok.OriginTS, reply); err != nil {
			// The transition is already durable; the reply is delivery,
			// not state. Logged for replay rather than unwinding the CAS.
			lctx.Errorf("warning_reply", err)
			s.metrics.Count(ctx, "warning_reply_failed", 1)
			return Outcome{Kind: OutcomeConfirmed, TraceID: tok.TraceID}
		}
		lctx.Logf("warning_sent", "channel", tok.OriginChannel, "ts", tok.OriginTS)
		s.metrics.Count(ctx, "warnings_sent", 1)
	} else {
		lctx.Logf("dismissed")
		s.metrics.Count(ctx, "violations_dismissed", 1)
	}

	return Outcome{Kind: OutcomeConfirmed, TraceID: tok.TraceID}
}

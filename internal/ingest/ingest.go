// Package ingest turns inbound message events into violation records
// and admin alerts. Every outcome is a tagged result: duplicate
// deliveries and non-violations are normal operation, not errors.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/guardpost/guardpost/internal/classify"
	"github.com/guardpost/guardpost/internal/dedup"
	"github.com/guardpost/guardpost/internal/metrics"
	"github.com/guardpost/guardpost/internal/obs"
	"github.com/guardpost/guardpost/internal/token"
	"github.com/guardpost/guardpost/internal/violation"
)

// ErrSchema wraps validation failures of the inbound event.
var ErrSchema = errors.New("inbound event schema error")

// Skip reasons reported on Skipped outcomes.
const (
	SkipAlreadyProcessed = "already_processed"
	SkipNotAViolation    = "not_a_violation"
	SkipBotMessage       = "bot_message"
	SkipSubtype          = "subtype"
	SkipEmptyText        = "empty_text"
	SkipUnmonitored      = "channel_not_monitored"
)

// Outcome kinds.
const (
	OutcomeCreated  = "created"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
)

// Outcome is the tagged result of one Ingest call.
type Outcome struct {
	Kind       string
	TraceID    string
	SkipReason string // set when Kind == OutcomeSkipped
	Err        error  // set when Kind == OutcomeRejected
}

// Notifier delivers the admin alert for a freshly created record.
type Notifier interface {
	NotifyViolation(ctx context.Context, rec violation.Record, encodedToken string) error
}

// Service wires the ingestion pipeline: dedup, classification, record
// creation, notification.
type Service struct {
	dedup      dedup.Deduplicator
	classifier classify.Classifier
	store      violation.Store
	notifier   Notifier
	metrics    *metrics.Emitter
	validate   *validatorv10.Validate

	// monitored restricts ingestion to these channel ids; empty means all.
	monitored map[string]bool
	nowFunc   func() time.Time
}

// NewService returns a configured ingestion service. monitoredChannels
// may be empty to monitor every channel.
func NewService(d dedup.Deduplicator, c classify.Classifier, s violation.Store, n Notifier, m *metrics.Emitter, monitoredChannels []string) *Service {
	monitored := map[string]bool{}
	for _, ch := range monitoredChannels {
		if ch = strings.TrimSpace(ch); ch != "" {
			monitored[ch] = true
		}
	}
	return &Service{
		dedup:      d,
		classifier: c,
		store:      s,
		notifier:   n,
		metrics:    m,
		validate:   NewValidator(),
		monitored:  monitored,
		nowFunc:    time.Now,
	}
}

// Ingest processes one inbound event. At most one record and one alert
// are ever produced per unique event id, no matter how often the
// transport redelivers it.
func (s *Service) Ingest(ctx context.Context, ev InboundEvent) Outcome {
	lctx := obs.NewCtx("ingest")
	s.metrics.Count(ctx, "events_received", 1)

	if err := s.validate.Struct(ev); err != nil {
		s.metrics.Count(ctx, "events_rejected", 1)
		return Outcome{Kind: OutcomeRejected, Err: fmt.Errorf("%w: %v", ErrSchema, err)}
	}

	traceID := violation.TraceID(ev.EventID)
	lctx = lctx.WithTrace(traceID)

	if reason := s.skipReason(ev); reason != "" {
		lctx.Logf("skip", "reason", reason)
		return Outcome{Kind: OutcomeSkipped, TraceID: traceID, SkipReason: reason}
	}

	isNew, err := s.dedup.MarkIfNew(ctx, ev.EventID)
	if err != nil {
		return Outcome{Kind: OutcomeRejected, Err: fmt.Errorf("dedup check: %w", err)}
	}
	if !isNew {
		lctx.Logf("skip", "reason", SkipAlreadyProcessed)
		return Outcome{Kind: OutcomeSkipped, TraceID: traceID, SkipReason: SkipAlreadyProcessed}
	}

	result, err := s.classifier.Classify(ctx, ev.Text)
	if err != nil {
		// A classifier failure is not "safe"; surface it so the caller
		// can retry the delivery.
		s.metrics.Count(ctx, "classify_failed", 1)
		return Outcome{Kind: OutcomeRejected, Err: fmt.Errorf("classify: %w", err)}
	}
	lctx.Logf("judge", "verdict", result.Verdict, "confidence", result.Confidence)
	if !result.Actionable() {
		return Outcome{Kind: OutcomeSkipped, TraceID: traceID, SkipReason: SkipNotAViolation}
	}

	rec := violation.Record{
		TraceID:       traceID,
		Status:        violation.StatusUnprocessed,
		OriginChannel: ev.Channel,
		OriginTS:      ev.TS,
		OriginUser:    ev.User,
		Text:          ev.Text,
		Classification: violation.Classification{
			Category:   result.Category,
			Confidence: result.Confidence,
			Reasons:    result.Reasons,
			ArticleID:  result.ArticleID,
		},
		CreatedAt: s.nowFunc().UTC(),
	}

	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, violation.ErrDuplicateKey) {
			// A retried delivery beat the dedup check; already handled.
			lctx.Logf("skip", "reason", SkipAlreadyProcessed)
			return Outcome{Kind: OutcomeSkipped, TraceID: traceID, SkipReason: SkipAlreadyProcessed}
		}
		return Outcome{Kind: OutcomeRejected, Err: fmt.Errorf("create record: %w", err)}
	}
	lctx.Logf("record_created")
	s.metrics.Count(ctx, "violations_detected", 1)

	reason := result.Category
	if len(result.Reasons) > 0 {
		reason = result.Reasons[0]
	}
	var policyRefs []string
	if result.ArticleID != "" {
		policyRefs = []string{result.ArticleID}
	}

	encoded, err := token.New(traceID, ev.Channel, ev.TS, reason, policyRefs).Encode()
	if err != nil {
		return Outcome{Kind: OutcomeRejected, Err: fmt.Errorf("encode token: %w", err)}
	}

	if err := s.notifier.NotifyViolation(ctx, rec, encoded); err != nil {
		// The record exists but no alert went out. Surfaced for retry;
		// the dedup entry keeps a redelivery from duplicating the record.
		s.metrics.Count(ctx, "notify_failed", 1)
		lctx.Errorf("notify_admin", err)
		return Outcome{Kind: OutcomeRejected, TraceID: traceID, Err: fmt.Errorf("notify: %w", err)}
	}
	lctx.Logf("notify_admin", "result", "success")

	return Outcome{Kind: OutcomeCreated, TraceID: traceID}
}

func (s *Service) skipReason(ev InboundEvent) string {
	switch {
	case ev.BotID != "":
		return SkipBotMessage
	case ev.Subtype != "":
		return SkipSubtype
	case strings.TrimSpace(ev.Text) == "":
		return SkipEmptyText
	case len(s.monitored) > 0 && !s.monitored[ev.Channel]:
		return SkipUnmonitored
	}
	return ""
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guardpost/guardpost/internal/dispatch"
	"github.com/guardpost/guardpost/internal/ingest"
	"github.com/guardpost/guardpost/internal/metrics"
	"github.com/guardpost/guardpost/internal/obs"
	"github.com/guardpost/guardpost/internal/slack"
	"github.com/guardpost/guardpost/internal/token"
)

// Ingestor runs the detection pipeline for one inbound event.
type Ingestor interface {
	Ingest(ctx context.Context, ev ingest.InboundEvent) ingest.Outcome
}

// Dispatcher applies one button press.
type Dispatcher interface {
	Dispatch(ctx context.Context, actionID, rawToken, responderID string) dispatch.Outcome
}

// JobPublisher enqueues a serialized inbound event for the worker.
type JobPublisher interface {
	SendDetectionJob(ctx context.Context, messageBody string, attributes map[string]string) error
}

// HandlerConfig groups dependencies for the Slack webhook routes.
type HandlerConfig struct {
	SigningSecret string
	Ingestor      Ingestor
	Dispatcher    Dispatcher
	// Publisher, when set, makes the events route enqueue instead of
	// ingesting inline; Slack requires an ack within 3 seconds and the
	// classifier can be slower than that.
	Publisher JobPublisher
	Metrics   *metrics.Emitter
	Now       func() time.Time
}

func (cfg HandlerConfig) now() time.Time {
	if cfg.Now != nil {
		return cfg.Now()
	}
	return time.Now()
}

// eventEnvelope is the Slack Events API callback shape.
type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Event     struct {
		Type     string `json:"type"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		Text     string `json:"text"`
		User     string `json:"user,omitempty"`
		ThreadTS string `json:"thread_ts,omitempty"`
		Subtype  string `json:"subtype,omitempty"`
		BotID    string `json:"bot_id,omitempty"`
	} `json:"event"`
}

// RegisterSlackRoutes registers the detection and interactivity webhooks.
func RegisterSlackRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.POST("/slack/events", func(c *gin.Context) { handleEvents(c, cfg) })
	r.POST("/slack/interactions", func(c *gin.Context) { handleInteractions(c, cfg) })
}

func handleEvents(c *gin.Context, cfg HandlerConfig) {
	ctx := c.Request.Context()
	lctx := obs.NewCtx("slack_events")
	started := cfg.now()

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}

	// Slack redelivers on slow acks; the first delivery already owns the
	// work, so retries get an immediate 200.
	if retry := c.GetHeader("X-Slack-Retry-Num"); retry != "" {
		lctx.Logf("retry_skip", "retry_num", retry)
		c.String(http.StatusOK, "ok")
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_event_body"})
		return
	}

	// URL verification happens during app setup, before secrets align.
	if envelope.Type == "url_verification" {
		lctx.Logf("url_verification")
		c.JSON(http.StatusOK, gin.H{"challenge": envelope.Challenge})
		return
	}

	if cfg.SigningSecret != "" {
		sig := c.GetHeader("X-Slack-Signature")
		ts := c.GetHeader("X-Slack-Request-Timestamp")
		if err := slack.VerifySignature(cfg.SigningSecret, sig, ts, body, cfg.now()); err != nil {
			lctx.Logf("verify_signature", "result", "fail")
			c.String(http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	if envelope.Type != "event_callback" || envelope.Event.Type != "message" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ev := ingest.InboundEvent{
		TeamID:   envelope.TeamID,
		EventID:  envelope.EventID,
		Channel:  envelope.Event.Channel,
		TS:       envelope.Event.TS,
		Text:     envelope.Event.Text,
		User:     envelope.Event.User,
		ThreadTS: envelope.Event.ThreadTS,
		Subtype:  envelope.Event.Subtype,
		BotID:    envelope.Event.BotID,
	}

	if cfg.Publisher != nil {
		payload, _ := json.Marshal(ev)
		attrs := map[string]string{
			"event_id": ev.EventID,
			"team_id":  ev.TeamID,
		}
		if err := cfg.Publisher.SendDetectionJob(ctx, string(payload), attrs); err != nil {
			lctx.Errorf("enqueue", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}
		lctx.Logf("enqueued", "event_id", ev.EventID)
		cfg.Metrics.Millis(ctx, "events_ack_latency_ms", cfg.now().Sub(started))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	outcome := cfg.Ingestor.Ingest(ctx, ev)
	cfg.Metrics.Millis(ctx, "events_ack_latency_ms", cfg.now().Sub(started))
	switch outcome.Kind {
	case ingest.OutcomeRejected:
		if errors.Is(outcome.Err, ingest.ErrSchema) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "schema_error", "detail": outcome.Err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest_failed"})
	default:
		// Created and every Skipped variant are success to the transport;
		// a non-200 here would only provoke pointless Slack retries.
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func handleInteractions(c *gin.Context, cfg HandlerConfig) {
	ctx := c.Request.Context()
	lctx := obs.NewCtx("slack_interactions")

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}

	if cfg.SigningSecret != "" {
		sig := c.GetHeader("X-Slack-Signature")
		ts := c.GetHeader("X-Slack-Request-Timestamp")
		if err := slack.VerifySignature(cfg.SigningSecret, sig, ts, body, cfg.now()); err != nil {
			lctx.Logf("verify_signature", "result", "fail")
			c.String(http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	interaction, err := slack.ParseInteraction(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_payload"})
		return
	}

	outcome := cfg.Dispatcher.Dispatch(ctx, interaction.ActionID, interaction.Value, interaction.ResponderID)
	switch outcome.Kind {
	case dispatch.OutcomeConfirmed:
		c.JSON(http.StatusOK, gin.H{"ok": true, "trace_id": outcome.TraceID})
	case dispatch.OutcomeAlreadyHandled:
		// Duplicate press; already settled. Success to the transport.
		c.JSON(http.StatusOK, gin.H{"ok": true, "trace_id": outcome.TraceID, "previous_status": outcome.Previous})
	default:
		switch {
		case errors.Is(outcome.Err, dispatch.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "record_not_found", "trace_id": outcome.TraceID})
		case errors.Is(outcome.Err, dispatch.ErrUnknownAction),
			errors.Is(outcome.Err, token.ErrMalformedToken),
			errors.Is(outcome.Err, token.ErrUnsupportedVersion),
			errors.Is(outcome.Err, token.ErrMissingField):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action", "detail": outcome.Err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch_failed"})
		}
	}
}

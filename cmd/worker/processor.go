package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/guardpost/guardpost/internal/ingest"
)

// Ingestor runs the detection pipeline for one inbound event.
type Ingestor interface {
	Ingest(ctx context.Context, ev ingest.InboundEvent) ingest.Outcome
}

// Processor drains detection jobs enqueued by the events webhook.
type Processor struct {
	ingestor Ingestor
}

func NewProcessor(ingestor Ingestor) *Processor {
	return &Processor{ingestor: ingestor}
}

// Handle receives an SQS batch event and ingests each message. Transient
// failures surface as errors so Lambda redelivers the batch; the dedup
// layer keeps redeliveries from duplicating records or alerts.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	log.Printf("[worker] received %d detection jobs", len(ev.Records))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("[worker] error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev ingest.InboundEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		// Malformed body never heals on retry; drop it instead of
		// cycling the message into the DLQ.
		log.Printf("[worker] dropping malformed job body: %v", err)
		return nil
	}

	outcome := p.ingestor.Ingest(ctx, ev)
	switch outcome.Kind {
	case ingest.OutcomeCreated:
		log.Printf("[worker] record created trace_id=%s", outcome.TraceID)
	case ingest.OutcomeSkipped:
		log.Printf("[worker] skipped trace_id=%s reason=%s", outcome.TraceID, outcome.SkipReason)
	case ingest.OutcomeRejected:
		if errors.Is(outcome.Err, ingest.ErrSchema) {
			// Same reasoning as malformed JSON: retrying cannot fix it.
			log.Printf("[worker] dropping job with schema error: %v", outcome.Err)
			return nil
		}
		return fmt.Errorf("ingest: %w", outcome.Err)
	}
	return nil
}

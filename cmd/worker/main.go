package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/guardpost/guardpost/internal/aws"
	"github.com/guardpost/guardpost/internal/classify"
	"github.com/guardpost/guardpost/internal/dedup"
	"github.com/guardpost/guardpost/internal/ingest"
	"github.com/guardpost/guardpost/internal/metrics"
	"github.com/guardpost/guardpost/internal/slack"
	"github.com/guardpost/guardpost/internal/violation"
)

func main() {
	ctx := context.Background()

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	var patterns []classify.Pattern
	if path := os.Getenv("NG_PATTERNS_FILE"); path != "" {
		patterns, err = classify.LoadPatterns(path)
		if err != nil {
			log.Fatalf("failed to load ng patterns: %v", err)
		}
	}

	slackClient := &slack.Client{Token: os.Getenv("SLACK_BOT_TOKEN")}
	notifier := slack.NewNotifier(slackClient, os.Getenv("SLACK_ADMIN_CHANNEL_ID"))

	ingestor := ingest.NewService(
		dedup.NewDynamoStore(clients.DynamoDB, os.Getenv("DEDUP_TABLE"), 48*time.Hour),
		classify.NewPatternClassifier(patterns),
		violation.NewDynamoStore(clients.DynamoDB, os.Getenv("VIOLATIONS_TABLE")),
		notifier,
		metrics.NewEmitter(clients.CloudWatch, "Guardpost", "worker"),
		splitList(os.Getenv("SLACK_MONITOR_CHANNEL_IDS")),
	)

	p := NewProcessor(ingestor)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"team_id":"T1","event_id":"local-1","channel":"C1","ts":"100.1","text":"hello"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

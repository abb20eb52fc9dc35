package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/guardpost/guardpost/internal/aws"
	"github.com/guardpost/guardpost/internal/classify"
	"github.com/guardpost/guardpost/internal/dedup"
	"github.com/guardpost/guardpost/internal/dispatch"
	"github.com/guardpost/guardpost/internal/handlers"
	"github.com/guardpost/guardpost/internal/ingest"
	"github.com/guardpost/guardpost/internal/metrics"
	"github.com/guardpost/guardpost/internal/slack"
	"github.com/guardpost/guardpost/internal/violation"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterSlackRoutes(r, cfg)

	return r
}

func main() {
	runLocal := os.Getenv("RUN_LOCAL") == "true"
	violationsTable := os.Getenv("VIOLATIONS_TABLE")
	dedupTable := os.Getenv("DEDUP_TABLE")
	queueURL := os.Getenv("DETECTION_QUEUE_URL")

	slackClient := &slack.Client{Token: os.Getenv("SLACK_BOT_TOKEN")}
	notifier := slack.NewNotifier(slackClient, os.Getenv("SLACK_ADMIN_CHANNEL_ID"))

	var patterns []classify.Pattern
	if path := os.Getenv("NG_PATTERNS_FILE"); path != "" {
		var err error
		patterns, err = classify.LoadPatterns(path)
		if err != nil {
			log.Fatalf("failed to load ng patterns: %v", err)
		}
	}
	classifier := classify.NewPatternClassifier(patterns)

	var (
		violationStore violation.Store
		deduplicator   dedup.Deduplicator
		emitter        *metrics.Emitter
		publisher      handlers.JobPublisher
	)

	if runLocal && violationsTable == "" {
		// Local development without AWS: in-memory reference stores.
		violationStore = violation.NewMemoryStore()
		deduplicator = dedup.NewMemoryStore()
	} else {
		clients, err := aws.NewAWSClients(context.Background())
		if err != nil {
			log.Fatalf("failed to init aws clients: %v", err)
		}
		violationStore = violation.NewDynamoStore(clients.DynamoDB, violationsTable)
		deduplicator = dedup.NewDynamoStore(clients.DynamoDB, dedupTable, 48*time.Hour)
		emitter = metrics.NewEmitter(clients.CloudWatch, "Guardpost", "api")
		if queueURL != "" {
			publisher = aws.NewPublisher(clients.SQS, queueURL)
		}
	}

	monitored := splitList(os.Getenv("SLACK_MONITOR_CHANNEL_IDS"))
	ingestor := ingest.NewService(deduplicator, classifier, violationStore, notifier, emitter, monitored)
	dispatcher := dispatch.NewService(violationStore, notifier, emitter)

	cfg := handlers.HandlerConfig{
		SigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		Ingestor:      ingestor,
		Dispatcher:    dispatcher,
		Publisher:     publisher,
		Metrics:       emitter,
	}

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if runLocal {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
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

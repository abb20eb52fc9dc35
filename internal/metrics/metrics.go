// Package metrics emits operational counters to CloudWatch. Emission is
// best-effort: a nil emitter or a failed put never affects the request.
package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/guardpost/guardpost/internal/aws"
)

// Emitter publishes metrics under one namespace with a Service dimension.
type Emitter struct {
	client    aws.CloudWatchAPI
	namespace string
	service   string
}

func NewEmitter(client aws.CloudWatchAPI, namespace, service string) *Emitter {
	return &Emitter{client: client, namespace: namespace, service: service}
}

// Count emits a unitless counter sample.
func (e *Emitter) Count(ctx context.Context, name string, value float64) {
	e.put(ctx, name, value, cwtypes.StandardUnitCount)
}

// Millis emits a latency sample in milliseconds.
func (e *Emitter) Millis(ctx context.Context, name string, d time.Duration) {
	e.put(ctx, name, float64(d.Milliseconds()), cwtypes.StandardUnitMilliseconds)
}

func (e *Emitter) put(ctx context.Context, name string, value float64, unit cwtypes.StandardUnit) {
	if e == nil || e.client == nil {
		return
	}
	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &e.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &name,
				Value:      &value,
				Unit:       unit,
				Dimensions: []cwtypes.Dimension{
					{Name: strPtr("Service"), Value: &e.service},
				},
			},
		},
	})
	if err != nil {
		log.Printf("[metrics] put failed metric=%s: %v", name, err)
	}
}

func strPtr(s string) *string { return &s }

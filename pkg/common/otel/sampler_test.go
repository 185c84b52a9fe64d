package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestEndpointExcluder(t *testing.T) {
	t.Parallel()

	sampler := newEndpointExcluder(map[string]struct{}{"/v1/health": {}}, 1.0)
	traceID := trace.TraceID{1}

	tests := []struct {
		name string
		span string
		want sdktrace.SamplingDecision
	}{
		{name: "excluded route", span: "/v1/health", want: sdktrace.Drop},
		{name: "tick frame", span: "tick_scheduler.scanning.run_frame", want: sdktrace.RecordAndSample},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := sampler.ShouldSample(sdktrace.SamplingParameters{
				ParentContext: context.Background(),
				TraceID:       traceID,
				Name:          tt.span,
			})
			assert.Equal(t, tt.want, res.Decision)
		})
	}
}

// Package memory provides an in-process targeting service. Synchronous
// requests complete before Execute returns; asynchronous requests are queued
// and completed by Pump, which the scheduler calls once per frame.
package memory

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/domain/targeting"
	"github.com/ahrav/grasp/pkg/common"
	"github.com/ahrav/grasp/pkg/common/logger"
)

// TargetProvider lists the targets a query may select from.
type TargetProvider interface {
	Targets() []targeting.Target
}

// TargetProviderFunc adapts a function to TargetProvider.
type TargetProviderFunc func() []targeting.Target

// Targets calls f().
func (f TargetProviderFunc) Targets() []targeting.Target { return f() }

type request struct {
	handle     targeting.RequestHandle
	preset     *targeting.Preset
	source     targeting.SourceContext
	results    []targeting.Result
	done       bool
	onComplete targeting.CompletionFunc
}

// Service is a targeting.Service backed by in-memory state. The results store
// is keyed by handle; an entry lives until its consumer releases it.
type Service struct {
	mu       sync.Mutex
	next     targeting.RequestHandle
	requests map[targeting.RequestHandle]*request
	queue    []*request

	targets TargetProvider
	limiter *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

var _ targeting.Service = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithDrainRate bounds how many queued requests Pump completes per second.
// A non-positive rps leaves the drain unbounded.
func WithDrainRate(rps float64, burst int) Option {
	return func(s *Service) { s.limiter = common.NewRateLimiter(rps, burst) }
}

// NewService creates a targeting service selecting from targets.
func NewService(targets TargetProvider, logger *logger.Logger, tracer trace.Tracer, opts ...Option) *Service {
	s := &Service{
		requests: make(map[targeting.RequestHandle]*request),
		targets:  targets,
		limiter:  common.NewRateLimiter(0, 1),
		logger:   logger.With("component", "targeting_service"),
		tracer:   tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MakeRequestHandle allocates a request. A nil preset yields the invalid handle.
func (s *Service) MakeRequestHandle(preset *targeting.Preset, src targeting.SourceContext) targeting.RequestHandle {
	if preset == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	s.requests[h] = &request{handle: h, preset: preset, source: src}
	return h
}

// ExecuteSynchronously runs the request and then calls onComplete. An unknown
// handle completes with the invalid handle.
func (s *Service) ExecuteSynchronously(ctx context.Context, h targeting.RequestHandle, onComplete targeting.CompletionFunc) {
	req, ok := s.lookup(h)
	if !ok {
		s.logger.Warn(ctx, "Executing unknown targeting request", "handle", uint64(h), "error", targeting.ErrUnknownHandle)
		onComplete(ctx, 0)
		return
	}

	s.execute(ctx, req, false)
	onComplete(ctx, h)
}

// ExecuteAsynchronously queues the request for the next Pump.
func (s *Service) ExecuteAsynchronously(ctx context.Context, h targeting.RequestHandle, onComplete targeting.CompletionFunc) {
	s.mu.Lock()
	req, ok := s.requests[h]
	if ok {
		req.onComplete = onComplete
		s.queue = append(s.queue, req)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Warn(ctx, "Queueing unknown targeting request", "handle", uint64(h), "error", targeting.ErrUnknownHandle)
		onComplete(ctx, 0)
		return
	}
	s.logger.Debug(ctx, "Targeting request queued", "handle", uint64(h), "preset", req.preset.Name())
}

// Pump completes queued requests in FIFO order while the drain rate allows at
// now and returns how many completed. Requests queued by the callbacks it runs
// wait for the next Pump.
func (s *Service) Pump(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	n := len(s.queue)
	s.mu.Unlock()

	completed := 0
	for range n {
		if ctx.Err() != nil || !s.limiter.AllowAt(now) {
			break
		}

		s.mu.Lock()
		req := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.execute(ctx, req, true)
		req.onComplete(ctx, req.handle)
		completed++
	}
	return completed
}

func (s *Service) execute(ctx context.Context, req *request, async bool) {
	ctx, span := s.tracer.Start(ctx, "targeting_service.execute",
		trace.WithAttributes(
			attribute.Int64("handle", int64(req.handle)),
			attribute.String("preset", req.preset.Name()),
			attribute.Bool("async", async),
		))
	defer span.End()

	r := &targeting.Request{Handle: req.handle, Source: req.source}
	if s.targets != nil {
		r.Candidates = s.targets.Targets()
	}
	if set := req.preset.TaskSet(); set != nil {
		for _, task := range set.Tasks {
			task.Execute(ctx, r)
		}
	}

	s.mu.Lock()
	req.results = r.Results
	req.done = true
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("result_count", len(r.Results)))
}

// Results returns a copy of the results accumulated for h.
func (s *Service) Results(h targeting.RequestHandle) ([]targeting.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[h]
	if !ok || !req.done {
		return nil, false
	}
	out := make([]targeting.Result, len(req.results))
	copy(out, req.results)
	return out, true
}

// Release drops h's request and results.
func (s *Service) Release(h targeting.RequestHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, h)
}

// Pending returns how many asynchronous requests wait for Pump.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Outstanding returns how many requests have not been released.
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Service) lookup(h targeting.RequestHandle) (*request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[h]
	return req, ok
}

package scanning

import (
	"context"

	"github.com/ahrav/grasp/internal/domain/targeting"
)

type fakeActor struct {
	id         string
	loc        targeting.Vector
	netUpdates int
}

func (a *fakeActor) ID() string                 { return a.id }
func (a *fakeActor) Location() targeting.Vector { return a.loc }
func (a *fakeActor) ForceNetUpdate()            { a.netUpdates++ }

// fakeRef is a weak reference whose target can be destroyed.
type fakeRef struct{ actor *fakeActor }

func (r *fakeRef) Resolve() (Actor, bool) {
	if r.actor == nil {
		return nil, false
	}
	return r.actor, true
}

type fakeOwner struct {
	name       string
	avatar     *fakeActor
	movement   bool
	service    targeting.Service
	broadcast  bool
	simulating bool
	endedTasks []*ScanTask
}

func newFakeOwner(svc targeting.Service) *fakeOwner {
	return &fakeOwner{
		name:      "GA_Scan",
		avatar:    &fakeActor{id: "avatar"},
		movement:  true,
		service:   svc,
		broadcast: true,
	}
}

func (o *fakeOwner) Name() string { return o.name }

func (o *fakeOwner) AvatarActor() (Actor, bool) {
	if o.avatar == nil {
		return nil, false
	}
	return o.avatar, true
}

func (o *fakeOwner) HasMovementCapability() bool { return o.movement }

func (o *fakeOwner) TargetingService() (targeting.Service, bool) {
	return o.service, o.service != nil
}

func (o *fakeOwner) ShouldBroadcast() bool { return o.broadcast }
func (o *fakeOwner) IsSimulating() bool    { return o.simulating }

func (o *fakeOwner) OnTaskEnded(_ context.Context, task *ScanTask) {
	o.endedTasks = append(o.endedTasks, task)
}

type pendingRequest struct {
	handle     targeting.RequestHandle
	onComplete targeting.CompletionFunc
}

// fakeService hands out results from a script, one batch per request. Async
// requests are held until flush is called.
type fakeService struct {
	next     targeting.RequestHandle
	script   [][]targeting.Result
	issued   int
	results  map[targeting.RequestHandle][]targeting.Result
	released []targeting.RequestHandle
	pending  []pendingRequest
	// outstanding counts requests issued but not yet completed.
	outstanding    int
	maxOutstanding int
	invalidHandles bool
}

func newFakeService(script ...[]targeting.Result) *fakeService {
	return &fakeService{script: script, results: make(map[targeting.RequestHandle][]targeting.Result)}
}

func (s *fakeService) MakeRequestHandle(*targeting.Preset, targeting.SourceContext) targeting.RequestHandle {
	if s.invalidHandles {
		return 0
	}
	s.next++
	return s.next
}

func (s *fakeService) prepare(h targeting.RequestHandle) {
	var batch []targeting.Result
	if s.issued < len(s.script) {
		batch = s.script[s.issued]
	}
	s.issued++
	s.outstanding++
	if s.outstanding > s.maxOutstanding {
		s.maxOutstanding = s.outstanding
	}
	if h.IsValid() {
		s.results[h] = batch
	}
}

func (s *fakeService) ExecuteSynchronously(ctx context.Context, h targeting.RequestHandle, onComplete targeting.CompletionFunc) {
	s.prepare(h)
	s.outstanding--
	onComplete(ctx, h)
}

func (s *fakeService) ExecuteAsynchronously(_ context.Context, h targeting.RequestHandle, onComplete targeting.CompletionFunc) {
	s.prepare(h)
	s.pending = append(s.pending, pendingRequest{handle: h, onComplete: onComplete})
}

// flush completes every deferred request.
func (s *fakeService) flush(ctx context.Context) {
	pending := s.pending
	s.pending = nil
	for _, p := range pending {
		s.outstanding--
		p.onComplete(ctx, p.handle)
	}
}

func (s *fakeService) Results(h targeting.RequestHandle) ([]targeting.Result, bool) {
	r, ok := s.results[h]
	return r, ok
}

func (s *fakeService) Release(h targeting.RequestHandle) {
	delete(s.results, h)
	s.released = append(s.released, h)
}

type recordingSink struct{ diagnostics []Diagnostic }

func (s *recordingSink) Report(_ context.Context, d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
}

func testPreset() *targeting.Preset {
	return targeting.NewPreset("nearby", &targeting.TaskSet{Tasks: []targeting.Task{noopTask{}}})
}

type noopTask struct{}

func (noopTask) Name() string                                { return "noop" }
func (noopTask) Execute(context.Context, *targeting.Request) {}

func results(n int) []targeting.Result {
	out := make([]targeting.Result, n)
	for i := range out {
		out[i] = targeting.Result{Target: &fakeActor{id: "target"}, Distance: float64(i)}
	}
	return out
}

package targeting

import "context"

// Request carries the state a Task operates on while a request executes.
type Request struct {
	Handle RequestHandle
	Source SourceContext
	// Candidates is every target the service knows about when execution starts.
	Candidates []Target
	Results    []Result
}

// Center returns the point the request is evaluated around: the origin when
// one was given, otherwise the source's location.
func (r *Request) Center() Vector {
	if r.Source.Origin != (Vector{}) || r.Source.Source == nil {
		return r.Source.Origin
	}
	return r.Source.Source.Location()
}

// Task is one step of a targeting pipeline (selection, filtering, sorting).
type Task interface {
	Name() string
	Execute(ctx context.Context, req *Request)
}

// TaskSet is the ordered list of tasks a preset runs.
type TaskSet struct {
	Tasks []Task
}

// IsEmpty reports whether the set holds no tasks.
func (s *TaskSet) IsEmpty() bool { return s == nil || len(s.Tasks) == 0 }

// Preset is a named, reusable targeting query descriptor.
type Preset struct {
	name    string
	taskSet *TaskSet
}

// NewPreset creates a preset. A nil task set is allowed so misconfiguration
// can be reported by whoever uses the preset.
func NewPreset(name string, taskSet *TaskSet) *Preset {
	return &Preset{name: name, taskSet: taskSet}
}

// Name returns the preset's name.
func (p *Preset) Name() string { return p.name }

// TaskSet returns the preset's task set, possibly nil.
func (p *Preset) TaskSet() *TaskSet { return p.taskSet }

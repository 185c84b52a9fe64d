// Package tasks provides the targeting pipeline steps presets are assembled
// from: spatial selection, source exclusion, ordering and truncation.
package tasks

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/ahrav/grasp/internal/domain/targeting"
)

// Task type names accepted by New.
const (
	TypeSelectRadius   = "select_radius"
	TypeExcludeSource  = "exclude_source"
	TypeSortByDistance = "sort_by_distance"
	TypeLimit          = "limit"
)

// Spec describes one pipeline step as it appears in configuration.
type Spec struct {
	Type   string
	Radius float64
	Count  int
}

// New builds the task described by spec.
func New(spec Spec) (targeting.Task, error) {
	switch spec.Type {
	case TypeSelectRadius:
		if spec.Radius <= 0 {
			return nil, fmt.Errorf("%s: radius must be positive, got %g", spec.Type, spec.Radius)
		}
		return SelectRadius{Radius: spec.Radius}, nil
	case TypeExcludeSource:
		return ExcludeSource{}, nil
	case TypeSortByDistance:
		return SortByDistance{}, nil
	case TypeLimit:
		if spec.Count <= 0 {
			return nil, fmt.Errorf("%s: count must be positive, got %d", spec.Type, spec.Count)
		}
		return Limit{Count: spec.Count}, nil
	default:
		return nil, fmt.Errorf("unknown targeting task type %q", spec.Type)
	}
}

// NewTaskSet builds a task set from specs, in order.
func NewTaskSet(specs []Spec) (*targeting.TaskSet, error) {
	set := &targeting.TaskSet{Tasks: make([]targeting.Task, 0, len(specs))}
	for i, spec := range specs {
		task, err := New(spec)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		set.Tasks = append(set.Tasks, task)
	}
	return set, nil
}

// SelectRadius replaces the result set with every candidate within Radius of
// the request's center.
type SelectRadius struct{ Radius float64 }

func (SelectRadius) Name() string { return TypeSelectRadius }

func (s SelectRadius) Execute(_ context.Context, req *targeting.Request) {
	center := req.Center()
	selected := make([]targeting.Result, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		loc := c.Location()
		if d := center.Dist(loc); d <= s.Radius {
			selected = append(selected, targeting.Result{Target: c, Location: loc, Distance: d})
		}
	}
	req.Results = selected
}

// ExcludeSource drops the source actor from the results.
type ExcludeSource struct{}

func (ExcludeSource) Name() string { return TypeExcludeSource }

func (ExcludeSource) Execute(_ context.Context, req *targeting.Request) {
	if req.Source.Source == nil {
		return
	}
	id := req.Source.Source.ID()
	req.Results = slices.DeleteFunc(req.Results, func(r targeting.Result) bool {
		return r.Target != nil && r.Target.ID() == id
	})
}

// SortByDistance orders results nearest first. Ties keep their order.
type SortByDistance struct{}

func (SortByDistance) Name() string { return TypeSortByDistance }

func (SortByDistance) Execute(_ context.Context, req *targeting.Request) {
	slices.SortStableFunc(req.Results, func(a, b targeting.Result) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
}

// Limit truncates the results to at most Count entries.
type Limit struct{ Count int }

func (Limit) Name() string { return TypeLimit }

func (l Limit) Execute(_ context.Context, req *targeting.Request) {
	if len(req.Results) > l.Count {
		req.Results = req.Results[:l.Count]
	}
}

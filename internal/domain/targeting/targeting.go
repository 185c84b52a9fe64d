// Package targeting defines the request/response contract of the targeting
// service scans are issued against. The query algorithm itself lives behind
// the Service port; this package only names what flows across it.
package targeting

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Vector is a world-space position.
type Vector struct{ X, Y, Z float64 }

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Length returns the euclidean length of v.
func (v Vector) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist returns the distance between v and o.
func (v Vector) Dist(o Vector) float64 { return v.Sub(o).Length() }

func (v Vector) String() string { return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z) }

// Target is anything a targeting query can return.
type Target interface {
	ID() string
	Location() Vector
}

// Result is one entry of a targeting result set.
type Result struct {
	Target   Target
	Location Vector
	Distance float64
	Score    float64
}

// SourceContext describes where a query originates.
type SourceContext struct {
	// Source is the actor the query is evaluated relative to.
	Source Target
	// Origin is an advisory world position.
	Origin Vector
}

// RequestHandle identifies one targeting request. The zero handle is invalid.
type RequestHandle uint64

// IsValid reports whether h refers to an issued request.
func (h RequestHandle) IsValid() bool { return h != 0 }

// CompletionFunc is invoked once a request finished executing.
type CompletionFunc func(ctx context.Context, h RequestHandle)

// ErrUnknownHandle is reported when a handle is not known to the service.
var ErrUnknownHandle = errors.New("unknown targeting request handle")

// Service is the external targeting service.
type Service interface {
	// MakeRequestHandle allocates a request bound to preset and src.
	MakeRequestHandle(preset *Preset, src SourceContext) RequestHandle

	// ExecuteSynchronously runs the request and invokes onComplete before returning.
	ExecuteSynchronously(ctx context.Context, h RequestHandle, onComplete CompletionFunc)

	// ExecuteAsynchronously queues the request; onComplete runs at a later point
	// of the same thread of control. Async requests are released on completion
	// once the caller calls Release.
	ExecuteAsynchronously(ctx context.Context, h RequestHandle, onComplete CompletionFunc)

	// Results returns the ordered result set accumulated for h.
	Results(h RequestHandle) ([]Result, bool)

	// Release drops every resource held for h. Releasing twice is a no-op.
	Release(h RequestHandle)
}

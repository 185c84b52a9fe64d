package scanning

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/domain/targeting"
	"github.com/ahrav/grasp/pkg/common/logger"
)

// WorldActor is an actor placed in the world. Its position may change between
// frames; scans always see the current one.
type WorldActor struct {
	id       string
	movement bool
	logger   *logger.Logger

	mu         sync.RWMutex
	position   targeting.Vector
	netUpdates atomic.Int64
}

var _ scanning.Actor = (*WorldActor)(nil)

// ID returns the actor's unique identifier.
func (a *WorldActor) ID() string { return a.id }

// Location returns the actor's current position.
func (a *WorldActor) Location() targeting.Vector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.position
}

// MoveTo sets the actor's position.
func (a *WorldActor) MoveTo(pos targeting.Vector) {
	a.mu.Lock()
	a.position = pos
	a.mu.Unlock()
}

// HasMovement reports whether the actor can move on its own.
func (a *WorldActor) HasMovement() bool { return a.movement }

// ForceNetUpdate records a request to replicate the actor immediately.
func (a *WorldActor) ForceNetUpdate() {
	n := a.netUpdates.Add(1)
	a.logger.Debug(context.Background(), "Forced net update", "actor_id", a.id, "count", n)
}

// NetUpdates returns how many immediate replications were requested.
func (a *WorldActor) NetUpdates() int64 { return a.netUpdates.Load() }

// World owns the actors and the targeting service abilities resolve against.
type World struct {
	mu      sync.RWMutex
	actors  map[string]*WorldActor
	order   []string
	service targeting.Service

	logger *logger.Logger
}

// NewWorld creates an empty world.
func NewWorld(logger *logger.Logger) *World {
	return &World{
		actors: make(map[string]*WorldActor),
		logger: logger.With("component", "world"),
	}
}

// Spawn places a new actor. IDs must be unique among live actors.
func (w *World) Spawn(id string, pos targeting.Vector, movement bool) (*WorldActor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.actors[id]; exists {
		return nil, fmt.Errorf("actor %q already exists", id)
	}
	a := &WorldActor{id: id, position: pos, movement: movement, logger: w.logger}
	w.actors[id] = a
	w.order = append(w.order, id)
	return a, nil
}

// Destroy removes an actor. References to it stop resolving.
func (w *World) Destroy(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.actors[id]; !ok {
		return false
	}
	delete(w.actors, id)
	for i, oid := range w.order {
		if oid == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return true
}

// Actor returns the live actor with id.
func (w *World) Actor(id string) (*WorldActor, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.actors[id]
	return a, ok
}

// Ref returns a weak reference to id. The actor does not need to exist yet.
func (w *World) Ref(id string) scanning.ActorRef { return actorRef{world: w, id: id} }

// Targets lists live actors in spawn order.
func (w *World) Targets() []targeting.Target {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]targeting.Target, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.actors[id])
	}
	return out
}

// SetTargetingService installs the world's targeting service. Nil removes it.
func (w *World) SetTargetingService(svc targeting.Service) {
	w.mu.Lock()
	w.service = svc
	w.mu.Unlock()
}

// TargetingService returns the installed targeting service.
func (w *World) TargetingService() (targeting.Service, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.service, w.service != nil
}

type actorRef struct {
	world *World
	id    string
}

func (r actorRef) Resolve() (scanning.Actor, bool) {
	a, ok := r.world.Actor(r.id)
	if !ok {
		return nil, false
	}
	return a, true
}

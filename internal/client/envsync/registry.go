package envsync

import (
	"sync"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
	"github.com/KBVE/bugwars-sub002/internal/sim/action"
)

// Object is the client-side materialization of one server environment object.
// It carries the single-holder interaction lock; actions hold *Object as a
// non-owning handle and observe destruction through Alive.
type Object struct {
	mu     sync.Mutex
	data   protocol.EnvironmentObjectData
	alive  bool
	holder action.Actor
}

func (o *Object) ObjectID() string { return o.data.ObjectID }

func (o *Object) Position() geom.Vec3 { return o.data.Position }

func (o *Object) Alive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.alive
}

func (o *Object) HarvestTime() float64 { return o.data.HarvestTime }

func (o *Object) Resource() protocol.ResourceType { return o.data.ResourceType }

func (o *Object) Data() protocol.EnvironmentObjectData { return o.data }

// BeginInteraction acquires the lock; false when another actor holds it or the
// object is already gone.
func (o *Object) BeginInteraction(actor action.Actor) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive || o.holder != nil {
		return false
	}
	o.holder = actor
	return true
}

// EndInteraction releases the lock; safe to call when not held.
func (o *Object) EndInteraction() {
	o.mu.Lock()
	o.holder = nil
	o.mu.Unlock()
}

// BeingInteracted reports whether some actor currently holds the lock.
func (o *Object) BeingInteracted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.holder != nil
}

// Registry is the client's view of the environment. The server is
// authoritative: entries only appear via spawn/respawn messages and only
// disappear via despawn or confirmed harvest.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

func NewRegistry() *Registry {
	return &Registry{objects: map[string]*Object{}}
}

// Upsert applies one spawn/respawn entry. Spawns are idempotent: a known id is
// replaced in place, never duplicated. The previous materialization (if any)
// is invalidated so stale handles read as destroyed.
func (r *Registry) Upsert(data protocol.EnvironmentObjectData) *Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.objects[data.ObjectID]; ok {
		prev.mu.Lock()
		prev.alive = false
		prev.holder = nil
		prev.mu.Unlock()
	}
	o := &Object{data: data, alive: true}
	r.objects[data.ObjectID] = o
	return o
}

// Remove destroys the local materialization. Outstanding handles keep reading
// Alive() == false; in-flight actions abort on their next tick.
func (r *Registry) Remove(objectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[objectID]
	if !ok {
		return false
	}
	o.mu.Lock()
	o.alive = false
	o.holder = nil
	o.mu.Unlock()
	delete(r.objects, objectID)
	return true
}

func (r *Registry) Get(objectID string) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.objects[objectID]
	return o, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// Nearest returns the closest live object to pos, or nil when the registry is
// empty. Used by the bot to pick harvest targets.
func (r *Registry) Nearest(pos geom.Vec3) *Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *Object
	bestDist := 0.0
	for _, o := range r.objects {
		d := pos.Dist(o.data.Position)
		if best == nil || d < bestDist {
			best, bestDist = o, d
		}
	}
	return best
}

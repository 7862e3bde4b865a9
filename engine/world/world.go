// Package world is a small entity-component world that notifies systems when
// entities start or stop matching their aspect.
package world

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// System is a per-tick processor interested in entities matching its Aspect.
type System interface {
	Aspect() Aspect
	Process(dt float32) error
}

// EntityObserver is implemented by systems that track aspect membership.
// Inserted fires when an entity starts matching, Removed when it stops matching
// or is destroyed. The entity, its components and its identity are still valid
// during Removed.
type EntityObserver interface {
	Inserted(id EntityID)
	Removed(id EntityID)
}

// EntityRefresher is implemented by observers that want to hear about component
// values replaced on an entity that stays inside their aspect.
type EntityRefresher interface {
	Refreshed(id EntityID)
}

type systemEntry struct {
	system    System
	aspect    Aspect
	observer  EntityObserver
	refresher EntityRefresher
	members   map[EntityID]struct{}
}

type dirtyEntry struct {
	changed   Mask
	destroyed bool
}

// World owns the entity pool, the component stores, the identity registry and
// the systems. It is not safe for concurrent use; everything runs on the tick goroutine.
type World struct {
	pool       *EntityPool
	identities *IdentityRegistry
	stores     []droppable
	masks      map[EntityID]Mask
	systems    []*systemEntry

	dirtyOrder   []EntityID
	dirty        map[EntityID]*dirtyEntry
	destroyQueue []EntityID

	log *zap.Logger
}

// NewWorld creates an empty world.
//
// Parameters:
//   - options: functional options for the world (logger)
//
// Returns:
//   - *World: the new world
func NewWorld(options ...WorldBuilderOption) *World {
	w := &World{
		pool:         NewEntityPool(),
		identities:   NewIdentityRegistry(),
		stores:       make([]droppable, 0, 16),
		masks:        make(map[EntityID]Mask, 256),
		dirty:        make(map[EntityID]*dirtyEntry, 64),
		destroyQueue: make([]EntityID, 0, 64),
		log:          zap.NewNop(),
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *World) Identities() *IdentityRegistry { return w.identities }

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Len returns the number of live entities, including those queued for destruction.
func (w *World) Len() int { return w.pool.Len() }

// CreateEntity allocates an entity and binds a fresh random identity to it.
func (w *World) CreateEntity() EntityID {
	id := w.pool.Create()
	u := uuid.New()
	for w.identities.Assign(id, u) != nil {
		u = uuid.New()
	}
	w.masks[id] = 0
	return id
}

// CreateEntityWithIdentity allocates an entity bound to a caller-supplied identity,
// used when restoring entities whose identity is persisted elsewhere.
//
// Parameters:
//   - u: the identity to bind
//
// Returns:
//   - EntityID: the new entity
//   - error: ErrNilIdentity or ErrDuplicateIdentity; no entity is created on error
func (w *World) CreateEntityWithIdentity(u uuid.UUID) (EntityID, error) {
	if u == uuid.Nil {
		return 0, ErrNilIdentity
	}
	if _, taken := w.identities.Entity(u); taken {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateIdentity, u)
	}
	id := w.pool.Create()
	if err := w.identities.Assign(id, u); err != nil {
		w.pool.Destroy(id)
		return 0, err
	}
	w.masks[id] = 0
	return id, nil
}

// DestroyEntity queues an entity for destruction at the next Flush.
// Observers see it leave their aspects before its components and identity are released.
func (w *World) DestroyEntity(id EntityID) error {
	if !w.Alive(id) {
		return ErrEntityNotAlive
	}
	w.destroyQueue = append(w.destroyQueue, id)
	w.entry(id).destroyed = true
	return nil
}

// AddSystem registers a system. Systems run and receive lifecycle callbacks in
// registration order. Entities that already exist are evaluated against the new
// system's aspect on the next Flush.
func (w *World) AddSystem(s System) {
	e := &systemEntry{
		system:  s,
		aspect:  s.Aspect(),
		members: make(map[EntityID]struct{}),
	}
	e.observer, _ = s.(EntityObserver)
	e.refresher, _ = s.(EntityRefresher)
	w.systems = append(w.systems, e)
	for id := range w.masks {
		w.markDirty(id)
	}
}

// Flush dispatches pending lifecycle events and finalizes queued destroys.
// Events raised by observers during Flush are deferred to the next Flush.
func (w *World) Flush() {
	order := w.dirtyOrder
	pending := w.dirty
	destroyed := w.destroyQueue
	w.dirtyOrder = nil
	w.dirty = make(map[EntityID]*dirtyEntry, len(pending))
	w.destroyQueue = make([]EntityID, 0, cap(destroyed))

	for _, id := range order {
		d := pending[id]
		mask, present := w.masks[id]
		present = present && !d.destroyed && w.pool.Alive(id)
		for _, s := range w.systems {
			w.evaluate(s, id, mask, present, d.changed)
		}
	}

	for _, id := range destroyed {
		w.finalizeDestroy(id)
	}
}

func (w *World) evaluate(s *systemEntry, id EntityID, mask Mask, present bool, changed Mask) {
	_, was := s.members[id]
	now := present && s.aspect.Matches(mask)
	switch {
	case was && !now:
		delete(s.members, id)
		if s.observer != nil {
			s.observer.Removed(id)
		}
	case !was && now:
		s.members[id] = struct{}{}
		if s.observer != nil {
			s.observer.Inserted(id)
		}
	case was && now && changed&s.aspect.mask != 0:
		if s.refresher != nil {
			s.refresher.Refreshed(id)
		}
	}
}

func (w *World) finalizeDestroy(id EntityID) {
	if !w.pool.Alive(id) {
		return
	}
	for _, s := range w.stores {
		s.drop(id)
	}
	for _, s := range w.systems {
		delete(s.members, id)
	}
	w.identities.Release(id)
	delete(w.masks, id)
	w.pool.Destroy(id)
}

// Process runs one world tick: lifecycle dispatch, then every system in
// registration order. A failing system does not stop the others; all errors
// are returned combined.
func (w *World) Process(dt float32) error {
	w.Flush()

	var errs error
	for _, s := range w.systems {
		if err := s.system.Process(dt); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("system %T: %w", s.system, err))
		}
	}
	return errs
}

// Members returns the entities currently inside a registered system's aspect.
func (w *World) Members(s System) []EntityID {
	for _, e := range w.systems {
		if e.system == s {
			out := make([]EntityID, 0, len(e.members))
			for id := range e.members {
				out = append(out, id)
			}
			return out
		}
	}
	return nil
}

func (w *World) entry(id EntityID) *dirtyEntry {
	d, ok := w.dirty[id]
	if !ok {
		d = &dirtyEntry{}
		w.dirty[id] = d
		w.dirtyOrder = append(w.dirtyOrder, id)
	}
	return d
}

func (w *World) markDirty(id EntityID) {
	w.entry(id)
}

func (w *World) markChanged(id EntityID, t ComponentType) {
	w.entry(id).changed |= t.Mask()
}

func zapEntity(id EntityID) zap.Field {
	return zap.Uint64("entity", uint64(id))
}

func zapComponent(name string) zap.Field {
	return zap.String("component", name)
}

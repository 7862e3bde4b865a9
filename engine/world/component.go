package world

import "fmt"

// ComponentType is the bit index a component store occupies in an entity mask.
type ComponentType uint8

// Mask is the set of component types an entity currently carries.
type Mask uint64

// MaxComponentTypes is the number of distinct stores a World can register.
const MaxComponentTypes = 64

func (t ComponentType) Mask() Mask { return Mask(1) << t }

func (m Mask) Has(t ComponentType) bool { return m&t.Mask() != 0 }

// Removable is implemented by all component stores so the World can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// Store is a typed map store for one component type, bound to the World that
// registered it. Mutations mark the entity dirty so the World can re-evaluate
// system aspects on the next Flush.
type Store[T any] struct {
	world *World
	typ   ComponentType
	name  string
	data  map[EntityID]*T
}

// NewStore registers a new component store with w.
// It panics once MaxComponentTypes stores are registered, which is a programming error.
func NewStore[T any](w *World) *Store[T] {
	if len(w.stores) >= MaxComponentTypes {
		panic(fmt.Sprintf("world: more than %d component types registered", MaxComponentTypes))
	}
	var zero T
	s := &Store[T]{
		world: w,
		typ:   ComponentType(len(w.stores)),
		name:  fmt.Sprintf("%T", zero),
		data:  make(map[EntityID]*T, 256),
	}
	w.stores = append(w.stores, s)
	return s
}

// Type returns the component type bit assigned to this store.
func (s *Store[T]) Type() ComponentType { return s.typ }

// Set attaches c to the entity, replacing any previous value.
// Replacing a value on an entity that already carries the type is reported to
// refresh-aware observers on the next Flush. Dead entities are ignored.
func (s *Store[T]) Set(id EntityID, c *T) {
	if !s.world.Alive(id) {
		s.world.log.Debug("set component on dead entity",
			zapEntity(id), zapComponent(s.name))
		return
	}
	_, existed := s.data[id]
	s.data[id] = c
	if existed {
		s.world.markChanged(id, s.typ)
		return
	}
	s.world.masks[id] |= s.typ.Mask()
	s.world.markDirty(id)
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

// Remove detaches the component. Removing an absent component is a no-op.
// The removal is recorded as a change, so a component set again before the next
// Flush is reported to refresh-aware observers instead of going unnoticed.
func (s *Store[T]) Remove(id EntityID) {
	if _, ok := s.data[id]; !ok {
		return
	}
	delete(s.data, id)
	if m, ok := s.world.masks[id]; ok {
		s.world.masks[id] = m &^ s.typ.Mask()
		s.world.markChanged(id, s.typ)
	}
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

// drop removes the component without change tracking; used when finalizing a destroy.
func (s *Store[T]) drop(id EntityID) {
	delete(s.data, id)
}

type droppable interface {
	Removable
	drop(id EntityID)
}

// Aspect is an all-of set of component types a system is interested in.
type Aspect struct {
	mask Mask
}

// AllOf builds an aspect matched by entities carrying every given type.
func AllOf(types ...ComponentType) Aspect {
	var a Aspect
	for _, t := range types {
		a.mask |= t.Mask()
	}
	return a
}

// Matches reports whether an entity mask satisfies the aspect.
func (a Aspect) Matches(m Mask) bool {
	return m&a.mask == a.mask
}

// Mask returns the required component set.
func (a Aspect) Mask() Mask { return a.mask }

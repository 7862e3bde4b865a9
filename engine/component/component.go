// Package component defines the world components the rendering pipeline reads.
package component

import (
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"github.com/Carmen-Shannon/helix-go/engine/world"
)

// SpatialForm carries the renderable node of an entity. Node may be nil while
// the entity's geometry is still being populated.
type SpatialForm struct {
	Node spatial.Node
}

// Visibility marks an entity as drawn. Removing it hides the entity without
// destroying it.
type Visibility struct{}

// Stores bundles the component stores registered with a world.
type Stores struct {
	SpatialForm *world.Store[SpatialForm]
	Visibility  *world.Store[Visibility]
}

// NewStores registers the rendering components with w.
func NewStores(w *world.World) *Stores {
	return &Stores{
		SpatialForm: world.NewStore[SpatialForm](w),
		Visibility:  world.NewStore[Visibility](w),
	}
}

// RenderAspect is the aspect of entities the rendering pipeline caches.
func (s *Stores) RenderAspect() world.Aspect {
	return world.AllOf(s.SpatialForm.Type(), s.Visibility.Type())
}

// SetNode attaches or replaces the node of an entity. Replacing the node of an
// entity that is already rendered is reported to the pipeline as a refresh.
func (s *Stores) SetNode(id world.EntityID, n spatial.Node) {
	s.SpatialForm.Set(id, &SpatialForm{Node: n})
}

// Show adds the Visibility marker.
func (s *Stores) Show(id world.EntityID) {
	if !s.Visibility.Has(id) {
		s.Visibility.Set(id, &Visibility{})
	}
}

// Hide removes the Visibility marker.
func (s *Stores) Hide(id world.EntityID) {
	s.Visibility.Remove(id)
}

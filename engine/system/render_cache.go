// Package system holds the world systems that drive the rendering pipeline.
package system

import (
	"slices"

	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"github.com/google/uuid"
)

// RenderCache maps entity identities to the nodes drawn for them. Iteration follows
// insertion order so frames are reproducible. A cache never holds a nil node.
type RenderCache struct {
	nodes map[uuid.UUID]spatial.Node
	order []uuid.UUID
}

// NewRenderCache creates an empty cache.
func NewRenderCache() *RenderCache {
	return &RenderCache{nodes: make(map[uuid.UUID]spatial.Node)}
}

// Put stores n under id, replacing any node already stored without changing the
// entry's position. A nil node is refused.
//
// Parameters:
//   - id: the entity identity
//   - n: the node to draw for the entity
//
// Returns:
//   - spatial.Node: the node previously stored under id, or nil
//   - bool: false if n is nil and nothing was stored
func (c *RenderCache) Put(id uuid.UUID, n spatial.Node) (spatial.Node, bool) {
	if n == nil {
		return nil, false
	}
	prev, ok := c.nodes[id]
	if !ok {
		c.order = append(c.order, id)
	}
	c.nodes[id] = n
	return prev, true
}

// Delete removes the entry of id. Deleting a missing identity is a no-op.
//
// Returns:
//   - spatial.Node: the removed node, or nil
//   - bool: whether an entry was removed
func (c *RenderCache) Delete(id uuid.UUID) (spatial.Node, bool) {
	n, ok := c.nodes[id]
	if !ok {
		return nil, false
	}
	delete(c.nodes, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	return n, true
}

// Get returns the node stored under id.
func (c *RenderCache) Get(id uuid.UUID) (spatial.Node, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// Has reports whether id has an entry.
func (c *RenderCache) Has(id uuid.UUID) bool {
	_, ok := c.nodes[id]
	return ok
}

// Len returns the number of entries.
func (c *RenderCache) Len() int {
	return len(c.nodes)
}

// Keys returns the identities in insertion order.
func (c *RenderCache) Keys() []uuid.UUID {
	return slices.Clone(c.order)
}

// Each calls fn for every entry in insertion order. fn must not modify the cache.
func (c *RenderCache) Each(fn func(id uuid.UUID, n spatial.Node)) {
	for _, id := range c.order {
		fn(id, c.nodes[id])
	}
}

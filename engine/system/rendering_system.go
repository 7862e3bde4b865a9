package system

import (
	"fmt"

	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/component"
	"github.com/Carmen-Shannon/helix-go/engine/postprocess"
	"github.com/Carmen-Shannon/helix-go/engine/renderer"
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"github.com/Carmen-Shannon/helix-go/engine/world"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultClearColor is the background every frame is cleared to.
var DefaultClearColor = common.Color{R: 0.4, G: 0.4, B: 0.4, A: 1}

// Camera is the view the rendering system draws from.
type Camera interface {
	renderer.ViewProjector

	// Update recomputes the camera matrices; called once at the start of every frame.
	Update()
}

// renderingSystem is the implementation of the RenderingSystem interface.
type renderingSystem struct {
	log *zap.Logger

	identities *world.IdentityRegistry
	stores     *component.Stores
	renderer   renderer.Renderer
	camera     Camera
	bloom      postprocess.Bloom

	axes       spatial.Node
	clearColor common.Color
	cache      *RenderCache
	ctx        *renderer.RenderContext
	batch      *renderer.ModelBatch

	// failed holds identities whose draw failure was already logged.
	failed map[uuid.UUID]struct{}

	// refs counts the cache entries sharing a node; its resources are released at zero.
	refs map[spatial.Node]int
}

// axesKey is the failure key of the axis indicator. No entity carries the nil identity.
var axesKey = uuid.Nil

// RenderingSystem keeps a cache of the nodes of every entity with a SpatialForm and
// Visibility, in step with the world's lifecycle events, and draws it once per tick.
//
// Register it with world.AddSystem; the world then calls Inserted, Removed and
// Refreshed before Process on the same goroutine. Several entities may share one
// node; its renderer resources are released when the last entry drawing it leaves.
type RenderingSystem interface {
	world.System
	world.EntityObserver
	world.EntityRefresher

	// ProcessFrame renders one frame: camera update, optional bloom capture, a single
	// render context and model batch holding the axis indicator and every cached node,
	// optional bloom composite, present. Nodes that cannot be drawn are skipped and
	// logged once per identity. Both scopes are closed before a panicking draw unwinds
	// out of ProcessFrame.
	//
	// Returns:
	//   - error: an error if the frame or its render context could not be acquired
	ProcessFrame() error

	// SetBloomEnabled turns bloom on or off from the next frame. It has no effect
	// when the system was built without a bloom stage.
	SetBloomEnabled(enabled bool)

	// BloomEnabled reports whether the next frame is rendered with bloom.
	BloomEnabled() bool

	// Resize reconfigures the renderer and the bloom buffers for a new surface size.
	//
	// Parameters:
	//   - width, height: the new surface size in pixels
	//
	// Returns:
	//   - error: an error if the renderer or bloom buffers could not be resized
	Resize(width, height int) error

	// Cache returns the render cache. Callers must not modify it.
	Cache() *RenderCache
}

var _ RenderingSystem = &renderingSystem{}

// NewRenderingSystem creates a rendering system reading components from stores and
// identities from w.
//
// Parameters:
//   - w: the world the system will be added to
//   - stores: the component stores registered with w
//   - r: the renderer to draw with
//   - cam: the camera to draw from
//   - options: variadic list of RenderingSystemBuilderOption functions
//
// Returns:
//   - RenderingSystem: the system, not yet registered with w
func NewRenderingSystem(w *world.World, stores *component.Stores, r renderer.Renderer, cam Camera, options ...RenderingSystemBuilderOption) RenderingSystem {
	s := &renderingSystem{
		log:        zap.NewNop(),
		identities: w.Identities(),
		stores:     stores,
		renderer:   r,
		camera:     cam,
		clearColor: DefaultClearColor,
		cache:      NewRenderCache(),
		ctx:        renderer.NewRenderContext(r),
		batch:      renderer.NewModelBatch(r),
		failed:     make(map[uuid.UUID]struct{}),
		refs:       make(map[spatial.Node]int),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.axes == nil {
		s.axes = spatial.BuildAxes(spatial.AxisLength)
	}
	return s
}

func (s *renderingSystem) Aspect() world.Aspect {
	return s.stores.RenderAspect()
}

func (s *renderingSystem) Process(dt float32) error {
	return s.ProcessFrame()
}

// Inserted caches the entity's node if its SpatialForm is populated. An entity whose
// node is set later is picked up by Refreshed.
func (s *renderingSystem) Inserted(id world.EntityID) {
	u, ok := s.identity(id, "inserted")
	if !ok {
		return
	}
	n := s.node(id)
	if n == nil {
		s.log.Debug("entity has no node yet", zap.Stringer("uuid", u))
		return
	}
	s.put(u, n)
}

// Removed drops the entity's entry and frees the node's renderer resources.
func (s *renderingSystem) Removed(id world.EntityID) {
	u, ok := s.identity(id, "removed")
	if !ok {
		return
	}
	s.drop(u)
}

// Refreshed re-reads the SpatialForm of an entity that stayed inside the aspect.
func (s *renderingSystem) Refreshed(id world.EntityID) {
	u, ok := s.identity(id, "refreshed")
	if !ok {
		return
	}
	n := s.node(id)
	if n == nil {
		s.drop(u)
		return
	}
	s.put(u, n)
}

func (s *renderingSystem) ProcessFrame() error {
	if err := s.renderer.BeginFrame(); err != nil {
		return fmt.Errorf("rendering: %w", err)
	}

	s.camera.Update()
	if s.bloom != nil {
		if err := s.bloom.Capture(); err != nil {
			s.log.Warn("bloom capture failed, rendering without bloom", zap.Error(err))
			s.bloom.Abort()
		}
	}

	w, h := s.renderer.Size()
	s.renderer.SetViewport(common.Viewport{Width: w, Height: h})
	s.renderer.Clear(s.clearColor)
	s.renderer.SetBlending(renderer.BlendAlpha)

	if err := s.renderPass(); err != nil {
		if s.bloom != nil {
			s.bloom.Abort()
		}
		// Present anyway so the backend lets go of the frame.
		if perr := s.renderer.Present(); perr != nil {
			s.log.Warn("present after failed render pass", zap.Error(perr))
		}
		return err
	}

	if s.bloom != nil {
		if err := s.bloom.Render(); err != nil {
			s.log.Error("bloom failed", zap.Error(err))
		}
	}

	if err := s.renderer.Present(); err != nil {
		return fmt.Errorf("rendering: %w", err)
	}
	return nil
}

// renderPass draws the axes and every cached node inside one render context and one
// model batch. Both scopes are closed on every return path.
func (s *renderingSystem) renderPass() (err error) {
	if err := s.ctx.Begin(); err != nil {
		return fmt.Errorf("rendering: %w", err)
	}
	defer func() {
		if endErr := s.ctx.End(); endErr != nil && err == nil {
			err = fmt.Errorf("rendering: %w", endErr)
		}
	}()

	if err := s.batch.Begin(s.camera); err != nil {
		return fmt.Errorf("rendering: %w", err)
	}
	defer func() {
		if endErr := s.batch.End(); endErr != nil && err == nil {
			err = fmt.Errorf("rendering: %w", endErr)
		}
	}()

	if err := s.batch.Draw(s.axes); err != nil {
		s.drawFailed(axesKey, s.axes, err)
	}
	s.cache.Each(func(u uuid.UUID, n spatial.Node) {
		if err := s.batch.Draw(n); err != nil {
			s.drawFailed(u, n, err)
		}
	})
	return nil
}

func (s *renderingSystem) SetBloomEnabled(enabled bool) {
	if s.bloom == nil {
		s.log.Warn("bloom toggle ignored, no bloom stage configured")
		return
	}
	s.bloom.SetEnabled(enabled)
}

func (s *renderingSystem) BloomEnabled() bool {
	return s.bloom != nil && s.bloom.Enabled()
}

func (s *renderingSystem) Resize(width, height int) error {
	if err := s.renderer.Resize(width, height); err != nil {
		return err
	}
	if s.bloom != nil {
		if err := s.bloom.Resize(width, height); err != nil {
			return err
		}
	}
	return nil
}

func (s *renderingSystem) Cache() *RenderCache {
	return s.cache
}

// identity resolves the stable identity of an entity, logging entities without one.
func (s *renderingSystem) identity(id world.EntityID, event string) (uuid.UUID, bool) {
	u, ok := s.identities.Identity(id)
	if !ok {
		s.log.Warn("lifecycle event for entity without identity",
			zap.String("event", event),
			zap.Uint64("entity", uint64(id)),
		)
	}
	return u, ok
}

// node returns the populated node of an entity's SpatialForm, or nil.
func (s *renderingSystem) node(id world.EntityID) spatial.Node {
	form, ok := s.stores.SpatialForm.Get(id)
	if !ok || form == nil {
		return nil
	}
	return form.Node
}

func (s *renderingSystem) put(u uuid.UUID, n spatial.Node) {
	prev, _ := s.cache.Put(u, n)
	if prev != n {
		s.refs[n]++
		s.unref(prev)
	}
	delete(s.failed, u)
}

func (s *renderingSystem) drop(u uuid.UUID) {
	if n, ok := s.cache.Delete(u); ok {
		s.unref(n)
	}
	delete(s.failed, u)
}

// unref releases the renderer resources of n once no cache entry draws it.
func (s *renderingSystem) unref(n spatial.Node) {
	if n == nil {
		return
	}
	s.refs[n]--
	if s.refs[n] > 0 {
		return
	}
	delete(s.refs, n)
	s.renderer.ReleaseNode(n)
}

// drawFailed logs the first failure of an identity, or of the axis indicator under
// axesKey; later failures are only counted in the renderer's frame stats.
func (s *renderingSystem) drawFailed(u uuid.UUID, n spatial.Node, err error) {
	if _, seen := s.failed[u]; seen {
		return
	}
	s.failed[u] = struct{}{}
	s.log.Warn("skipping node",
		zap.Stringer("uuid", u),
		zap.String("node", n.Label()),
		zap.Error(err),
	)
}

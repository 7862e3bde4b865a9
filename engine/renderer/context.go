package renderer

import "github.com/Carmen-Shannon/helix-go/engine/spatial"

// ViewProjector is anything that supplies a combined view-projection matrix, such as a camera.
type ViewProjector interface {
	ViewProjectionMatrix() [16]float32
}

// RenderContext is the scoped acquisition of the renderer's drawing state. It opens with the
// target, viewport, clear and blend state configured on the Renderer and must be ended on
// every exit path:
//
//	if err := ctx.Begin(); err != nil {
//		return err
//	}
//	defer ctx.End()
type RenderContext struct {
	r Renderer
}

// NewRenderContext creates a render context over r.
func NewRenderContext(r Renderer) *RenderContext {
	return &RenderContext{r: r}
}

// Begin opens the context.
//
// Returns:
//   - error: ErrContextActive on double begin, or the backend error
func (c *RenderContext) Begin() error {
	return c.r.BeginContext()
}

// End closes the context.
//
// Returns:
//   - error: ErrNoContext without a matching Begin, ErrBatchActive while a batch is open
func (c *RenderContext) End() error {
	return c.r.EndContext()
}

// Active reports whether the context is open.
func (c *RenderContext) Active() bool {
	return c.r.ContextActive()
}

// ModelBatch is the scoped, camera-bound submission of nodes inside a RenderContext.
type ModelBatch struct {
	r Renderer
}

// NewModelBatch creates a model batch over r.
func NewModelBatch(r Renderer) *ModelBatch {
	return &ModelBatch{r: r}
}

// Begin opens the batch with the camera's current view-projection matrix.
//
// Parameters:
//   - cam: the camera the batch is bound to
//
// Returns:
//   - error: ErrNoContext or ErrBatchActive
func (b *ModelBatch) Begin(cam ViewProjector) error {
	return b.r.BeginBatch(cam.ViewProjectionMatrix())
}

// Draw submits one node.
func (b *ModelBatch) Draw(node spatial.Node) error {
	return b.r.Draw(node)
}

// End closes the batch.
func (b *ModelBatch) End() error {
	return b.r.EndBatch()
}

// Active reports whether the batch is open.
func (b *ModelBatch) Active() bool {
	return b.r.BatchActive()
}

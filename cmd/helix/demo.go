package main

import (
	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/component"
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"github.com/Carmen-Shannon/helix-go/engine/world"
	"go.uber.org/zap"
)

// demoPalette is cycled through when the toggled box is re-populated.
var demoPalette = []common.Color{
	{R: 0.9, G: 0.2, B: 0.2, A: 1},
	{R: 0.2, G: 0.8, B: 0.3, A: 1},
	{R: 0.2, G: 0.4, B: 0.9, A: 1},
	{R: 0.9, G: 0.8, B: 0.2, A: 1},
}

// demoScene is the fixed scene the viewer opens with: a textured ground tile, a row
// of boxes, a translucent box, a bright box for bloom and a box that has a node but
// no Visibility.
type demoScene struct {
	log    *zap.Logger
	world  *world.World
	stores *component.Stores

	ground  world.EntityID
	boxes   []world.EntityID
	glass   world.EntityID
	glow    world.EntityID
	hidden  world.EntityID
	toggled world.EntityID

	visible bool
	color   int
}

// newDemoScene creates the demo entities. They enter the render cache on the next
// world tick.
//
// Parameters:
//   - log: logger for input-driven changes
//   - w: the world to populate
//   - stores: the component stores of w
//   - groundTexture: texture of the ground tile; nil uses a generated checkerboard
//
// Returns:
//   - *demoScene: the populated scene
func newDemoScene(log *zap.Logger, w *world.World, stores *component.Stores, groundTexture *common.TextureStagingData) *demoScene {
	d := &demoScene{log: log, world: w, stores: stores, visible: true}
	if groundTexture == nil {
		groundTexture = checkerTexture(64, 8)
	}

	ground := spatial.NewQuad(40, 40, common.ColorWhite, spatial.WithLabel("ground"))
	ground.SetMaterial(&spatial.Material{
		Name:        "ground",
		BaseColor:   common.ColorWhite,
		Opacity:     1,
		TextureName: "ground",
		Texture:     groundTexture,
	})
	d.ground = d.spawn(ground, true)

	for i := 0; i < 4; i++ {
		x := float32(i*6 - 9)
		box := spatial.NewBox(3, demoPalette[i],
			spatial.WithLabel("box"),
			spatial.WithPosition([3]float32{x, 0, 1.5}),
		)
		d.boxes = append(d.boxes, d.spawn(box, true))
	}
	d.toggled = d.boxes[0]

	glass := spatial.NewBox(4, common.Color{R: 0.6, G: 0.8, B: 1, A: 1},
		spatial.WithLabel("glass"),
		spatial.WithPosition([3]float32{0, 8, 2}),
	)
	glass.SetOpacity(0.4)
	d.glass = d.spawn(glass, true)

	glow := spatial.NewBox(2, common.ColorWhite,
		spatial.WithLabel("glow"),
		spatial.WithPosition([3]float32{0, -8, 4}),
		spatial.WithRotation([3]float32{0, 0, common.Radians(45)}),
	)
	d.glow = d.spawn(glow, true)

	hidden := spatial.NewBox(3, common.ColorBlack,
		spatial.WithLabel("hidden"),
		spatial.WithPosition([3]float32{12, 12, 1.5}),
	)
	d.hidden = d.spawn(hidden, false)
	return d
}

func (d *demoScene) spawn(n spatial.Node, visible bool) world.EntityID {
	id := d.world.CreateEntity()
	d.stores.SetNode(id, n)
	if visible {
		d.stores.Show(id)
	}
	return id
}

// visibleCount returns the number of entities the render cache should hold.
func (d *demoScene) visibleCount() int {
	n := 1 + len(d.boxes) + 2
	if !d.visible {
		n--
	}
	return n
}

// toggleVisibility adds or removes the Visibility marker of the first box.
func (d *demoScene) toggleVisibility() {
	d.visible = !d.visible
	if d.visible {
		d.stores.Show(d.toggled)
	} else {
		d.stores.Hide(d.toggled)
	}
	d.log.Info("visibility toggled", zap.Bool("visible", d.visible))
}

// repopulate replaces the node of the first box with a freshly built one in the next
// palette color.
func (d *demoScene) repopulate() {
	d.color = (d.color + 1) % len(demoPalette)
	form, ok := d.stores.SpatialForm.Get(d.toggled)
	pos := [3]float32{-9, 0, 1.5}
	if ok && form != nil && form.Node != nil {
		pos = form.Node.Position()
	}
	d.stores.SetNode(d.toggled, spatial.NewBox(3, demoPalette[d.color],
		spatial.WithLabel("box"),
		spatial.WithPosition(pos),
	))
	d.log.Info("node re-populated", zap.Int("color", d.color))
}

// checkerTexture generates a size x size two-tone checkerboard with cells of cell pixels.
func checkerTexture(size, cell int) *common.TextureStagingData {
	pix := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := byte(90)
			if (x/cell+y/cell)%2 == 0 {
				v = 160
			}
			i := (y*size + x) * 4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 255
		}
	}
	return &common.TextureStagingData{Pixels: pix, Width: uint32(size), Height: uint32(size)}
}

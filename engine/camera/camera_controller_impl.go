package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/helix-go/common"
)

// cameraControllerImpl is the orbit implementation of CameraController.
type cameraControllerImpl struct {
	mu *sync.Mutex

	// Camera position (computed from target + spherical coords)
	position [3]float32
	target   [3]float32

	// Spherical coordinates (offset from target)
	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed float32
	zoomSpeed  float32
	panSpeed   float32
}

// Compile-time interface compliance check
var _ CameraController = &cameraControllerImpl{}

// NewOrbitController creates a new orbit controller.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewOrbitController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu: &sync.Mutex{},

		radius:    float32(30 * math.Sqrt2),
		azimuth:   0,
		elevation: float32(math.Pi / 4),

		minRadius:    1.0,
		maxRadius:    280.0,
		minElevation: 0.05,
		maxElevation: float32(math.Pi/2 - 0.05),

		orbitSpeed: 0.03,
		zoomSpeed:  2.0,
		panSpeed:   1.0,
	}

	for _, option := range options {
		option(cc)
	}

	cc.clamp()
	cc.updatePosition()
	return cc
}

// OrbitFromPosition creates an orbit controller whose initial eye is exactly
// eye, orbiting target.
//
// Parameters:
//   - eye: initial camera position
//   - target: the orbit center
//   - options: functional options applied before the eye is derived
//
// Returns:
//   - CameraController: the newly created controller
func OrbitFromPosition(eye, target [3]float32, options ...CameraControllerOption) CameraController {
	dx := float64(eye[0] - target[0])
	dy := float64(eye[1] - target[1])
	dz := float64(eye[2] - target[2])
	r := math.Sqrt(dx*dx + dy*dy + dz*dz)

	opts := []CameraControllerOption{WithTarget(target)}
	if r > 1e-6 {
		opts = append(opts,
			WithRadius(float32(r)),
			WithAzimuth(float32(math.Atan2(dx, -dy))),
			WithElevation(float32(math.Asin(dz/r))),
		)
	}
	return NewOrbitController(append(opts, options...)...)
}

// updatePosition recomputes the eye position from spherical coordinates.
// Caller must hold the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	cosElev := float32(math.Cos(float64(cc.elevation)))
	sinElev := float32(math.Sin(float64(cc.elevation)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	sinAzim := float32(math.Sin(float64(cc.azimuth)))

	cc.position[0] = cc.target[0] + cc.radius*cosElev*sinAzim
	cc.position[1] = cc.target[1] - cc.radius*cosElev*cosAzim
	cc.position[2] = cc.target[2] + cc.radius*sinElev
}

// clamp keeps radius and elevation within the configured limits.
// Caller must hold the mutex.
func (cc *cameraControllerImpl) clamp() {
	cc.radius = common.Clamp(cc.radius, cc.minRadius, cc.maxRadius)
	cc.elevation = common.Clamp(cc.elevation, cc.minElevation, cc.maxElevation)
}

func (cc *cameraControllerImpl) Position() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position[0], cc.position[1], cc.position[2]
}

func (cc *cameraControllerImpl) Target() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target[0], cc.target[1], cc.target[2]
}

func (cc *cameraControllerImpl) SetTarget(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = [3]float32{x, y, z}
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth += dAzimuth
	cc.elevation += dElevation
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius -= delta * cc.zoomSpeed
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Pan(right, forward float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	// horizontal view direction; right = forward x Z
	sinAzim := float32(math.Sin(float64(cc.azimuth)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	fx, fy := -sinAzim, cosAzim
	rx, ry := fy, -fx

	dx := (rx*right + fx*forward) * cc.panSpeed
	dy := (ry*right + fy*forward) * cc.panSpeed
	cc.target[0] += dx
	cc.target[1] += dy
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}

func (cc *cameraControllerImpl) OrbitSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.orbitSpeed
}

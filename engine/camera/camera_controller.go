package camera

// CameraController defines the interface for an orbit controller in a Z-up world.
// The eye sits on a sphere around the target described by radius, azimuth
// (angle around +Z, 0 looking along +Y) and elevation (angle above the XY plane).
type CameraController interface {
	// Position returns the camera eye position.
	//
	// Returns:
	//   - x, y, z: eye position components
	Position() (x, y, z float32)

	// Target returns the point the camera orbits and looks at.
	//
	// Returns:
	//   - x, y, z: target components
	Target() (x, y, z float32)

	// SetTarget moves the orbit center, keeping radius and angles.
	//
	// Parameters:
	//   - x, y, z: the new target
	SetTarget(x, y, z float32)

	// Orbit rotates the eye around the target. Elevation is clamped to the
	// controller's limits.
	//
	// Parameters:
	//   - dAzimuth: change of azimuth in radians
	//   - dElevation: change of elevation in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the eye toward (positive delta) or away from the target,
	// clamped to the radius limits.
	//
	// Parameters:
	//   - delta: zoom steps, scaled by the zoom speed
	Zoom(delta float32)

	// Pan translates eye and target together along the ground plane.
	//
	// Parameters:
	//   - right: distance along the camera's right vector
	//   - forward: distance along the camera's forward vector projected on the XY plane
	Pan(right, forward float32)

	// Radius returns the distance between eye and target.
	Radius() float32

	// Azimuth returns the horizontal orbit angle in radians.
	Azimuth() float32

	// Elevation returns the vertical orbit angle in radians.
	Elevation() float32

	// OrbitSpeed returns the angle applied per keyboard orbit step.
	OrbitSpeed() float32
}

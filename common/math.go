package common

import (
	"math"
	"unsafe"
)

// Identity resets a 4x4 column-major matrix to the identity matrix.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Radians converts an angle in degrees to radians.
//
// Parameters:
//   - degrees: the angle in degrees
//
// Returns:
//   - float32: the angle in radians
func Radians(degrees float32) float32 {
	return degrees * (math.Pi / 180.0)
}

// SliceToBytes reinterprets a slice as raw bytes for GPU buffer uploads.
// The returned slice aliases the input and must not outlive it.
//
// Parameters:
//   - data: source slice of any fixed-size element type
//
// Returns:
//   - []byte: byte view of the input data, or nil if the input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(size)*len(data))
}

// Mul4 multiplies two column-major 4x4 matrices: out = a * b.
// out may alias a or b.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			buf[col*4+row] = sum
		}
	}
	copy(out, buf[:])
}

// TransformPoint multiplies the point (x, y, z, 1) by a column-major 4x4 matrix
// and returns the homogeneous result.
//
// Parameters:
//   - m: the matrix (16 elements)
//   - x, y, z: the point
//
// Returns:
//   - cx, cy, cz, cw: the transformed homogeneous coordinates
func TransformPoint(m []float32, x, y, z float32) (cx, cy, cz, cw float32) {
	cx = m[0]*x + m[4]*y + m[8]*z + m[12]
	cy = m[1]*x + m[5]*y + m[9]*z + m[13]
	cz = m[2]*x + m[6]*y + m[10]*z + m[14]
	cw = m[3]*x + m[7]*y + m[11]*z + m[15]
	return
}

// Perspective builds a right-handed perspective projection that maps depth into
// the [0, 1] clip range used by WebGPU.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
func Perspective(out []float32, fovY, aspect, near, far float32) {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	Identity(out)

	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	out[15] = 0.0
}

// BuildModelMatrix composes translation, Euler rotation (Y * X * Z) and scale
// into a column-major model matrix.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - pos: translation in world space
//   - rot: rotation angles in radians around X, Y and Z
//   - scale: scale factors along X, Y and Z
func BuildModelMatrix(out []float32, pos, rot, scale [3]float32) {
	cx := float32(math.Cos(float64(rot[0])))
	sx := float32(math.Sin(float64(rot[0])))
	cy := float32(math.Cos(float64(rot[1])))
	sy := float32(math.Sin(float64(rot[1])))
	cz := float32(math.Cos(float64(rot[2])))
	sz := float32(math.Sin(float64(rot[2])))

	out[0] = (cy*cz + sy*sx*sz) * scale[0]
	out[1] = (cx * sz) * scale[0]
	out[2] = (-sy*cz + cy*sx*sz) * scale[0]
	out[3] = 0

	out[4] = (cy*-sz + sy*sx*cz) * scale[1]
	out[5] = (cx * cz) * scale[1]
	out[6] = (sy*sz + cy*sx*cz) * scale[1]
	out[7] = 0

	out[8] = (sy * cx) * scale[2]
	out[9] = (-sx) * scale[2]
	out[10] = (cy * cx) * scale[2]
	out[11] = 0

	out[12] = pos[0]
	out[13] = pos[1]
	out[14] = pos[2]
	out[15] = 1
}

// LookAt builds a view matrix for an eye positioned at eye looking toward center.
// Degenerate inputs (eye == center, or up parallel to the view direction) fall back
// to unit-length axes instead of producing NaNs.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - eye: camera position in world space
//   - center: the point the camera looks at
//   - up: the world up direction
func LookAt(out []float32, eye, center, up [3]float32) {
	z0 := eye[0] - center[0]
	z1 := eye[1] - center[1]
	z2 := eye[2] - center[2]
	z0, z1, z2 = normalize3(z0, z1, z2)

	x0 := up[1]*z2 - up[2]*z1
	x1 := up[2]*z0 - up[0]*z2
	x2 := up[0]*z1 - up[1]*z0
	x0, x1, x2 = normalize3(x0, x1, x2)

	y0 := z1*x2 - z2*x1
	y1 := z2*x0 - z0*x2
	y2 := z0*x1 - z1*x0

	out[0], out[4], out[8], out[12] = x0, x1, x2, -(x0*eye[0] + x1*eye[1] + x2*eye[2])
	out[1], out[5], out[9], out[13] = y0, y1, y2, -(y0*eye[0] + y1*eye[1] + y2*eye[2])
	out[2], out[6], out[10], out[14] = z0, z1, z2, -(z0*eye[0] + z1*eye[1] + z2*eye[2])
	out[3], out[7], out[11], out[15] = 0, 0, 0, 1
}

func normalize3(x, y, z float32) (float32, float32, float32) {
	l := float64(x*x + y*y + z*z)
	if l == 0 {
		return x, y, z
	}
	inv := float32(1.0 / math.Sqrt(l))
	return x * inv, y * inv, z * inv
}

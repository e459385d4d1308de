package l2cloud

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/costmap/internal/monitoring"
)

// Transform is a 4x4 homogeneous transform in row-major order:
// m00,m01,m02,m03, m10,... The bottom row is always [0 0 0 1].
type Transform [16]float64

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
const MatrixValidationTolerance = 0.01

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// NewTransform builds a rigid transform from a rotation quaternion and a
// translation. The quaternion is used as given: a non-unit quaternion yields
// a scaled, non-rigid rotation block and keeping it unit length is the
// caller's job.
func NewTransform(q quat.Number, t r3.Vec) Transform {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	tx, ty, tz := 2*x, 2*y, 2*z
	twx, twy, twz := tx*w, ty*w, tz*w
	txx, txy, txz := tx*x, ty*x, tz*x
	tyy, tyz, tzz := ty*y, tz*y, tz*z

	return Transform{
		1 - (tyy + tzz), txy - twz, txz + twy, t.X,
		txy + twz, 1 - (txx + tzz), tyz - twx, t.Y,
		txz - twy, tyz + twx, 1 - (txx + tyy), t.Z,
		0, 0, 0, 1,
	}
}

// Translation returns the translation column.
func (T Transform) Translation() r3.Vec {
	return r3.Vec{X: T[3], Y: T[7], Z: T[11]}
}

// ApplyPose applies T to point (x,y,z).
func ApplyPose(x, y, z float64, T Transform) (wx, wy, wz float64) {
	wx = T[0]*x + T[1]*y + T[2]*z + T[3]
	wy = T[4]*x + T[5]*y + T[6]*z + T[7]
	wz = T[8]*x + T[9]*y + T[10]*z + T[11]
	return
}

// IsRigid checks that T has a proper rotation block (det ≈ 1) and a
// [0 0 0 1] bottom row.
func IsRigid(T Transform) bool {
	r00, r01, r02 := T[0], T[1], T[2]
	r10, r11, r12 := T[4], T[5], T[6]
	r20, r21, r22 := T[8], T[9], T[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}

	return T[12] == 0 && T[13] == 0 && T[14] == 0 && math.Abs(T[15]-1.0) <= 0.001
}

// PoseTracker holds the most recent sensor-to-world transform. Each SetPose
// replaces it whole; there is no history or interpolation.
type PoseTracker struct {
	mu sync.RWMutex
	t  Transform
}

// NewPoseTracker returns a tracker holding the identity transform.
func NewPoseTracker() *PoseTracker {
	return &PoseTracker{t: Identity()}
}

// SetPose replaces the held transform.
func (pt *PoseTracker) SetPose(q quat.Number, t r3.Vec) {
	next := NewTransform(q, t)
	if n := quat.Abs(q); math.Abs(n-1) > 1e-6 {
		monitoring.Debugf("pose quaternion is not unit length (|q|=%.6f); rotation block is not rigid", n)
	}

	pt.mu.Lock()
	pt.t = next
	pt.mu.Unlock()
}

// CurrentPose returns a copy of the held transform.
func (pt *PoseTracker) CurrentPose() Transform {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.t
}

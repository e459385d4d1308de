package l2cloud

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewPoseTracker_Identity(t *testing.T) {
	pt := NewPoseTracker()
	assert.Equal(t, Identity(), pt.CurrentPose())
	assert.True(t, IsRigid(pt.CurrentPose()))
}

func TestSetPose_YawNinetyDegrees(t *testing.T) {
	pt := NewPoseTracker()
	h := math.Sqrt2 / 2
	pt.SetPose(quat.Number{Real: h, Kmag: h}, r3.Vec{X: 1, Y: 2, Z: 3})

	T := pt.CurrentPose()
	require.True(t, IsRigid(T))

	want := Transform{
		0, -1, 0, 1,
		1, 0, 0, 2,
		0, 0, 1, 3,
		0, 0, 0, 1,
	}
	for i := range want {
		assert.InDelta(t, want[i], T[i], 1e-12, "element %d", i)
	}

	// Sensor +X becomes world +Y, then translated.
	x, y, z := ApplyPose(1, 0, 0, T)
	assert.InDelta(t, 1.0, x, 1e-12)
	assert.InDelta(t, 3.0, y, 1e-12)
	assert.InDelta(t, 3.0, z, 1e-12)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, T.Translation())
}

func TestSetPose_ReplacesWhole(t *testing.T) {
	pt := NewPoseTracker()
	pt.SetPose(quat.Number{Real: 0, Imag: 1}, r3.Vec{X: 5})
	pt.SetPose(quat.Number{Real: 1}, r3.Vec{Y: -1})

	T := pt.CurrentPose()
	want := Identity()
	want[7] = -1
	assert.Equal(t, want, T)
}

func TestSetPose_NonUnitQuaternionAccepted(t *testing.T) {
	pt := NewPoseTracker()
	pt.SetPose(quat.Number{Imag: 2}, r3.Vec{})

	// No renormalization: the result is not rigid but the bottom row is intact.
	T := pt.CurrentPose()
	assert.False(t, IsRigid(T))
	assert.Equal(t, [4]float64{0, 0, 0, 1}, [4]float64{T[12], T[13], T[14], T[15]})
}

func TestIsRigid(t *testing.T) {
	assert.True(t, IsRigid(Identity()))

	bad := Identity()
	bad[12] = 1
	assert.False(t, IsRigid(bad))

	reflect := Identity()
	reflect[0] = -1
	assert.False(t, IsRigid(reflect))
}

func TestPoseTracker_NoTornReads(t *testing.T) {
	pt := NewPoseTracker()
	a := NewTransform(quat.Number{Real: 1}, r3.Vec{X: 1, Y: 1, Z: 1})
	h := math.Sqrt2 / 2
	b := NewTransform(quat.Number{Real: h, Imag: h}, r3.Vec{X: -7, Y: 8, Z: -9})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				pt.SetPose(quat.Number{Real: 1}, r3.Vec{X: 1, Y: 1, Z: 1})
			} else {
				pt.SetPose(quat.Number{Real: h, Imag: h}, r3.Vec{X: -7, Y: 8, Z: -9})
			}
		}
	}()

	for i := 0; i < 5000; i++ {
		got := pt.CurrentPose()
		if got != a && got != b && got != Identity() {
			close(stop)
			wg.Wait()
			t.Fatalf("observed torn transform %v", got)
		}
	}
	close(stop)
	wg.Wait()
}

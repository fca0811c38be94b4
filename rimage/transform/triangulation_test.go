package transform

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

// cameraAt returns the projection of a camera whose extrinsic maps reference coordinates x to R·x + t.
func cameraAt(t *testing.T, intrinsics *PinholeCameraIntrinsics, yaw float64, trans r3.Vector) *mat.Dense {
	t.Helper()
	s, c := math.Sincos(yaw)
	ext := mat.NewDense(4, 4, []float64{
		c, 0, s, trans.X,
		0, 1, 0, trans.Y,
		-s, 0, c, trans.Z,
		0, 0, 0, 1,
	})
	proj, err := intrinsics.ProjectionMatrix(ext)
	test.That(t, err, test.ShouldBeNil)
	return proj
}

func project(t *testing.T, proj mat.Matrix, p r3.Vector) r2.Point {
	t.Helper()
	px, _, err := Project(proj, p)
	test.That(t, err, test.ShouldBeNil)
	return px
}

func TestTriangulateLinearRoundTrip(t *testing.T) {
	intrinsics := NewPinholeCameraIntrinsics(718.856, 607.1928, 185.2157)
	proj1 := cameraAt(t, intrinsics, 0, r3.Vector{})
	proj2 := cameraAt(t, intrinsics, 0.05, r3.Vector{X: -0.54, Z: -0.8})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		want := r3.Vector{
			X: rng.Float64()*20 - 10,
			Y: rng.Float64()*4 - 2,
			Z: 3 + rng.Float64()*40,
		}
		got, err := TriangulateLinear(proj1, proj2, project(t, proj1, want), project(t, proj2, want))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-6)
		test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-6)
		test.That(t, got.Z, test.ShouldAlmostEqual, want.Z, 1e-6)
	}
}

func TestTriangulateMultiView(t *testing.T) {
	intrinsics := NewPinholeCameraIntrinsics(500, 320, 240)
	want := r3.Vector{X: 1, Y: 0.5, Z: 10}
	projs := []mat.Matrix{
		cameraAt(t, intrinsics, 0, r3.Vector{}),
		cameraAt(t, intrinsics, 0, r3.Vector{X: -0.3, Z: -0.5}),
		cameraAt(t, intrinsics, 0, r3.Vector{X: -0.6, Z: -1}),
	}
	pixels := make([]r2.Point, len(projs))
	for i, proj := range projs {
		pixels[i] = project(t, proj, want)
	}
	got, err := TriangulateMultiView(projs, pixels)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Sub(want).Norm(), test.ShouldBeLessThan, 1e-6)

	rms, err := ReprojectionError(projs, pixels, got)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rms, test.ShouldBeLessThan, 1e-6)

	rms, err = ReprojectionError(projs, pixels, want.Add(r3.Vector{X: 0.1}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rms, test.ShouldBeGreaterThan, 1)

	_, err = TriangulateMultiView(projs[:1], pixels[:1])
	test.That(t, err, test.ShouldNotBeNil)
	_, err = TriangulateMultiView(projs, pixels[:2])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTriangulatePointAtInfinity(t *testing.T) {
	intrinsics := NewPinholeCameraIntrinsics(500, 320, 240)
	proj1 := cameraAt(t, intrinsics, 0, r3.Vector{})
	proj2 := cameraAt(t, intrinsics, 0, r3.Vector{X: -1})

	// identical pixels from two laterally displaced cameras only meet at infinity
	px := r2.Point{X: 400, Y: 200}
	_, err := TriangulateLinear(proj1, proj2, px, px)
	test.That(t, errors.Is(err, ErrPointAtInfinity), test.ShouldBeTrue)
}

func TestProjectBehindCamera(t *testing.T) {
	intrinsics := NewPinholeCameraIntrinsics(500, 320, 240)
	proj := cameraAt(t, intrinsics, 0, r3.Vector{})
	_, _, err := Project(proj, r3.Vector{X: 1, Y: 1, Z: 0})
	test.That(t, errors.Is(err, ErrBehindCamera), test.ShouldBeTrue)
}

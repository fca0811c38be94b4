package odometry

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/landmarks/rimage/transform"
	"go.viam.com/landmarks/spatialmath"
)

// frameAt builds a frame whose camera sits at forward in current coordinates.
func frameAt(t *testing.T, forward *mat.Dense) *CameraFrame {
	t.Helper()
	inverse, err := spatialmath.InvertTransform(forward)
	test.That(t, err, test.ShouldBeNil)
	projection, err := testIntrinsics().ProjectionMatrix(inverse)
	test.That(t, err, test.ShouldBeNil)
	return &CameraFrame{Forward: forward, Inverse: inverse, Projection: projection}
}

func drivingFrames(t *testing.T, n int) []*CameraFrame {
	t.Helper()
	frames := make([]*CameraFrame, n)
	for i := 0; i < n; i++ {
		age := float64(n - 1 - i)
		forward, err := spatialmath.NewTransformFromRotationTranslation(
			spatialmath.RotationMatrixY(-0.02*age), r3.Vector{X: -0.3 * age, Z: -age})
		test.That(t, err, test.ShouldBeNil)
		frames[i] = frameAt(t, forward)
	}
	return frames
}

func observe(t *testing.T, frames []*CameraFrame, p r3.Vector) []r2.Point {
	t.Helper()
	pixels := make([]r2.Point, len(frames))
	for i, f := range frames {
		px, _, err := transform.Project(f.Projection, p)
		test.That(t, err, test.ShouldBeNil)
		pixels[i] = px
	}
	return pixels
}

func TestRefinePointConverges(t *testing.T) {
	frames := drivingFrames(t, 4)
	want := r3.Vector{X: 1, Y: -0.5, Z: 12}
	pixels := observe(t, frames, want)

	start := want.Add(r3.Vector{X: 0.3, Y: -0.2, Z: 1})
	got, err := RefinePoint(frames, pixels, start, DefaultRefinementConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-4)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-4)
	test.That(t, got.Z, test.ShouldAlmostEqual, want.Z, 1e-4)
}

func TestGaussNewtonStepResults(t *testing.T) {
	frames := drivingFrames(t, 3)
	want := r3.Vector{X: -2, Y: 0.3, Z: 20}
	pixels := observe(t, frames, want)

	p := want
	test.That(t, gaussNewtonStep(frames, pixels, &p, 1, 1e-5), test.ShouldEqual, RefineConverged)

	p = want.Add(r3.Vector{Z: 2})
	test.That(t, gaussNewtonStep(frames, pixels, &p, 1, 1e-5), test.ShouldEqual, RefineUpdated)
	test.That(t, p.Distance(want), test.ShouldBeLessThan, 2)

	// on the principal plane of the newest camera the projection has no depth
	p = r3.Vector{X: 1, Y: 1, Z: 0}
	test.That(t, gaussNewtonStep(frames, pixels, &p, 1, 1e-5), test.ShouldEqual, RefineFailed)
	test.That(t, RefineFailed.String(), test.ShouldEqual, "failed")
}

func TestRefinePointFailures(t *testing.T) {
	frames := drivingFrames(t, 3)
	want := r3.Vector{X: 1, Y: 1, Z: 15}
	pixels := observe(t, frames, want)

	_, err := RefinePoint(frames, pixels, r3.Vector{X: 1, Y: 1, Z: 0}, DefaultRefinementConfig())
	test.That(t, errors.Is(err, ErrRefinementDiverged), test.ShouldBeTrue)

	cfg := DefaultRefinementConfig()
	cfg.MaxIterations = 1
	_, err = RefinePoint(frames, pixels, want.Add(r3.Vector{X: 1, Z: 3}), cfg)
	test.That(t, errors.Is(err, ErrRefinementExhausted), test.ShouldBeTrue)

	_, err = RefinePoint(frames, pixels[:2], want, DefaultRefinementConfig())
	test.That(t, err, test.ShouldNotBeNil)
	_, err = RefinePoint(frames[:1], pixels[:1], want, DefaultRefinementConfig())
	test.That(t, err, test.ShouldNotBeNil)
}

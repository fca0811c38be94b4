package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	intrinsics := NewPinholeCameraIntrinsics(500, 320, 240)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)

	intrinsics.Fy = 0
	err := intrinsics.CheckValid()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Fy")

	intrinsics = NewPinholeCameraIntrinsics(500, -1, 240)
	test.That(t, intrinsics.CheckValid(), test.ShouldNotBeNil)
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intrinsics.json")
	err := os.WriteFile(path, []byte(`{"width_px": 1241, "height_px": 376, "fx": 718.856, "fy": 718.856, "ppx": 607.1928, "ppy": 185.2157}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	intrinsics, err := NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intrinsics.Width, test.ShouldEqual, 1241)
	test.That(t, intrinsics.Ppy, test.ShouldAlmostEqual, 185.2157)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPixelPointRoundTrip(t *testing.T) {
	intrinsics := NewPinholeCameraIntrinsics(500, 320, 240)
	p := r3.Vector{X: 1.5, Y: -0.5, Z: 11}
	px, ok := intrinsics.PointToPixel(p)
	test.That(t, ok, test.ShouldBeTrue)
	back := intrinsics.PixelToPoint(px.X, px.Y, p.Z)
	test.That(t, back.Sub(p).Norm(), test.ShouldBeLessThan, 1e-9)

	_, ok = intrinsics.PointToPixel(r3.Vector{X: 1})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestProjectionMatrix(t *testing.T) {
	intrinsics := NewPinholeCameraIntrinsics(500, 320, 240)
	ext := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0.5,
		0, 1, 0, 0,
		0, 0, 1, 1,
		0, 0, 0, 1,
	})
	proj, err := intrinsics.ProjectionMatrix(ext)
	test.That(t, err, test.ShouldBeNil)
	want := mat.NewDense(3, 4, []float64{
		500, 0, 320, 570,
		0, 500, 240, 240,
		0, 0, 1, 1,
	})
	test.That(t, mat.EqualApprox(proj, want, 1e-12), test.ShouldBeTrue)

	px, depth, err := Project(proj, r3.Vector{X: 1, Y: -0.5, Z: 10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depth, test.ShouldAlmostEqual, 11)
	test.That(t, px.X, test.ShouldAlmostEqual, 320+500*1.5/11)
	test.That(t, px.Y, test.ShouldAlmostEqual, 240-500*0.5/11)

	_, err = intrinsics.ProjectionMatrix(mat.NewDense(3, 4, nil))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCameraToGround(t *testing.T) {
	flat := &GroundPlane{PitchRad: 0, HeightM: 1.6}
	tr := flat.CameraToGround()
	// a point on the road directly ahead of the camera
	road := mat.NewVecDense(4, nil)
	road.MulVec(tr, mat.NewVecDense(4, []float64{0, 1.6, 12, 1}))
	test.That(t, road.AtVec(1), test.ShouldAlmostEqual, 0)
	test.That(t, road.AtVec(2), test.ShouldAlmostEqual, 12)

	def := NewDefaultGroundPlane()
	test.That(t, def.PitchRad, test.ShouldEqual, DefaultCameraPitch)
	test.That(t, def.HeightM, test.ShouldEqual, DefaultCameraHeight)
	test.That(t, mat.Det(def.CameraToGround()), test.ShouldAlmostEqual, 1)
}

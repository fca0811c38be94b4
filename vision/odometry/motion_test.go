package odometry

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/landmarks/spatialmath"
)

func TestNewMotion3DFromRotationTranslation(t *testing.T) {
	// rotation = Id
	rot := mat.NewDense(3, 3, nil)
	rot.Set(0, 0, 1)
	rot.Set(1, 1, 1)
	rot.Set(2, 2, 1)

	// Translation = 1m in z direction
	tr := mat.NewDense(3, 1, []float64{0, 0, 1})

	motion := NewMotion3DFromRotationTranslation(rot, tr)
	test.That(t, motion, test.ShouldNotBeNil)
	test.That(t, motion.Rotation, test.ShouldResemble, rot)
	test.That(t, motion.Translation, test.ShouldResemble, tr)

	T, err := motion.Transform()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(T, spatialmath.NewTranslationTransform(r3.Vector{Z: 1})), test.ShouldBeTrue)
}

func TestMotion3DTransform(t *testing.T) {
	rot := spatialmath.RotationMatrixY(0.02)
	motion := NewMotion3DFromRotationTranslation(rot, mat.NewDense(3, 1, []float64{0.1, 0, -0.9}))
	T, err := motion.Transform()
	test.That(t, err, test.ShouldBeNil)
	want, err := spatialmath.NewTransformFromRotationTranslation(rot, r3.Vector{X: 0.1, Z: -0.9})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(T, want), test.ShouldBeTrue)

	var missing *Motion3D
	_, err = missing.Transform()
	test.That(t, err, test.ShouldNotBeNil)
	_, err = (&Motion3D{Rotation: rot}).Transform()
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewMotion3DFromRotationTranslation(rot, mat.NewDense(1, 3, []float64{0, 0, 1})).Transform()
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewMotion3DFromRotationTranslation(mat.NewDense(2, 2, nil), mat.NewDense(3, 1, nil)).Transform()
	test.That(t, err, test.ShouldNotBeNil)
}

package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestTransformPoint(t *testing.T) {
	tr, err := NewTransformFromRotationTranslation(RotationMatrixZ(math.Pi/2), r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, err, test.ShouldBeNil)

	p := TransformPoint(tr, r3.Vector{X: 1})
	test.That(t, p.X, test.ShouldAlmostEqual, 1)
	test.That(t, p.Y, test.ShouldAlmostEqual, 3)
	test.That(t, p.Z, test.ShouldAlmostEqual, 3)
	test.That(t, TranslationOf(tr), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})

	_, err = NewTransformFromRotationTranslation(mat.NewDense(2, 2, nil), r3.Vector{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInvertAndCompose(t *testing.T) {
	tr, err := NewTransformFromRotationTranslation(RotationMatrixY(0.3), r3.Vector{X: -0.5, Y: 0.1, Z: 2})
	test.That(t, err, test.ShouldBeNil)
	inv, err := InvertTransform(tr)
	test.That(t, err, test.ShouldBeNil)

	id := ComposeTransforms(tr, inv)
	test.That(t, mat.EqualApprox(id, NewIdentityTransform(), 1e-12), test.ShouldBeTrue)

	p := r3.Vector{X: 4, Y: -1, Z: 7}
	back := TransformPoint(inv, TransformPoint(tr, p))
	test.That(t, back.Sub(p).Norm(), test.ShouldBeLessThan, 1e-12)

	_, err = InvertTransform(mat.NewDense(4, 4, nil))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCheckRigidTransform(t *testing.T) {
	tr, err := NewTransformFromRotationTranslation(RotationMatrixX(-0.08), r3.Vector{Y: -1.6})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, CheckRigidTransform(tr), test.ShouldBeNil)
	test.That(t, CheckRigidTransform(NewIdentityTransform()), test.ShouldBeNil)

	err = CheckRigidTransform(mat.NewDense(3, 4, nil))
	test.That(t, errors.Is(err, ErrNotRigidTransform), test.ShouldBeTrue)

	scaled := NewIdentityTransform()
	scaled.Set(0, 0, 2)
	err = CheckRigidTransform(scaled)
	test.That(t, errors.Is(err, ErrNotRigidTransform), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "determinant")

	projective := NewIdentityTransform()
	projective.Set(3, 2, 1)
	err = CheckRigidTransform(projective)
	test.That(t, errors.Is(err, ErrNotRigidTransform), test.ShouldBeTrue)

	nan := NewIdentityTransform()
	nan.Set(1, 3, math.NaN())
	test.That(t, CheckRigidTransform(nan), test.ShouldNotBeNil)
}

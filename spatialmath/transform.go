// Package spatialmath provides rigid-body transform helpers over homogeneous 4x4 matrices.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TransformValidationTolerance is the allowed deviation of a rotation determinant from 1 and of
// the homogeneous row from [0 0 0 1].
const TransformValidationTolerance = 1e-3

// ErrNotRigidTransform is returned when a matrix is not a homogeneous rigid transform.
var ErrNotRigidTransform = errors.New("matrix is not a 4x4 rigid transform")

// NewIdentityTransform returns a new 4x4 identity matrix.
func NewIdentityTransform() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// NewTranslationTransform returns a transform that only translates by t.
func NewTranslationTransform(t r3.Vector) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, t.X,
		0, 1, 0, t.Y,
		0, 0, 1, t.Z,
		0, 0, 0, 1,
	})
}

// NewTransformFromRotationTranslation builds the homogeneous matrix [R|t] from a 3x3 rotation and a translation.
func NewTransformFromRotationTranslation(rot mat.Matrix, t r3.Vector) (*mat.Dense, error) {
	if r, c := rot.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("rotation must be 3x3, got %dx%d", r, c)
	}
	out := NewTranslationTransform(t)
	out.Slice(0, 3, 0, 3).(*mat.Dense).Copy(rot)
	return out, nil
}

// RotationMatrixX returns the 3x3 rotation of theta radians about the x axis.
func RotationMatrixX(theta float64) *mat.Dense {
	s, c := math.Sincos(theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// RotationMatrixY returns the 3x3 rotation of theta radians about the y axis.
func RotationMatrixY(theta float64) *mat.Dense {
	s, c := math.Sincos(theta)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

// RotationMatrixZ returns the 3x3 rotation of theta radians about the z axis.
func RotationMatrixZ(theta float64) *mat.Dense {
	s, c := math.Sincos(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// ComposeTransforms returns a·b, the transform applying b first and then a.
func ComposeTransforms(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// InvertTransform returns the inverse of a 4x4 transform.
func InvertTransform(t mat.Matrix) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(t); err != nil {
		return nil, errors.Wrap(err, "cannot invert transform")
	}
	return &inv, nil
}

// TransformPoint applies a homogeneous transform to a point.
func TransformPoint(t mat.Matrix, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t.At(0, 0)*p.X + t.At(0, 1)*p.Y + t.At(0, 2)*p.Z + t.At(0, 3),
		Y: t.At(1, 0)*p.X + t.At(1, 1)*p.Y + t.At(1, 2)*p.Z + t.At(1, 3),
		Z: t.At(2, 0)*p.X + t.At(2, 1)*p.Y + t.At(2, 2)*p.Z + t.At(2, 3),
	}
}

// TranslationOf returns the translation column of a homogeneous transform.
func TranslationOf(t mat.Matrix) r3.Vector {
	return r3.Vector{X: t.At(0, 3), Y: t.At(1, 3), Z: t.At(2, 3)}
}

// CheckRigidTransform verifies that t is 4x4, finite, has a proper rotation block (det ≈ 1) and
// a homogeneous last row of [0 0 0 1].
func CheckRigidTransform(t mat.Matrix) error {
	if r, c := t.Dims(); r != 4 || c != 4 {
		return errors.Wrapf(ErrNotRigidTransform, "got %dx%d", r, c)
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			v := t.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrNotRigidTransform, "non-finite entry at (%d,%d)", i, j)
			}
		}
	}
	if math.Abs(t.At(3, 0)) > TransformValidationTolerance ||
		math.Abs(t.At(3, 1)) > TransformValidationTolerance ||
		math.Abs(t.At(3, 2)) > TransformValidationTolerance ||
		math.Abs(t.At(3, 3)-1) > TransformValidationTolerance {
		return errors.Wrap(ErrNotRigidTransform, "last row is not [0 0 0 1]")
	}
	var rot mat.Dense
	rot.CloneFrom(t)
	det := mat.Det(rot.Slice(0, 3, 0, 3))
	if math.Abs(det-1) > TransformValidationTolerance {
		return errors.Wrapf(ErrNotRigidTransform, "rotation determinant is %.6f", det)
	}
	return nil
}

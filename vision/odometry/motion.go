package odometry

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/landmarks/spatialmath"
)

// Motion3D contains the 3D rotation and translation between 2 frames. Applied to a point given in the
// previous camera's coordinates it yields the point in the current camera's coordinates.
type Motion3D struct {
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewMotion3DFromRotationTranslation returns a new pointer to Motion3D from a rotation and a translation matrix.
func NewMotion3DFromRotationTranslation(rotation, translation *mat.Dense) *Motion3D {
	return &Motion3D{
		Rotation:    rotation,
		Translation: translation,
	}
}

// Transform returns the motion as a homogeneous 4x4 matrix.
func (m *Motion3D) Transform() (*mat.Dense, error) {
	if m == nil || m.Rotation == nil || m.Translation == nil {
		return nil, errors.New("motion is missing its rotation or translation")
	}
	if r, c := m.Translation.Dims(); r != 3 || c != 1 {
		return nil, errors.Errorf("translation must be 3x1, got %dx%d", r, c)
	}
	t := r3.Vector{X: m.Translation.At(0, 0), Y: m.Translation.At(1, 0), Z: m.Translation.At(2, 0)}
	return spatialmath.NewTransformFromRotationTranslation(m.Rotation, t)
}

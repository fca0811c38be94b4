package transform

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultCameraPitch is the default camera pitch relative to the road plane, in radians.
	DefaultCameraPitch = -0.08
	// DefaultCameraHeight is the default camera height above the road plane, in meters.
	DefaultCameraHeight = 1.6
)

// GroundPlane describes how a forward-looking camera sits above a flat road.
// The road frame shares the camera's axis convention (x right, y down, z forward)
// with its origin on the road below the camera.
type GroundPlane struct {
	PitchRad float64 `json:"pitch_rad" yaml:"pitch_rad"`
	HeightM  float64 `json:"height_m" yaml:"height_m" validate:"gt=0"`
}

// NewDefaultGroundPlane returns the ground extrinsics of a car-mounted camera.
func NewDefaultGroundPlane() *GroundPlane {
	return &GroundPlane{PitchRad: DefaultCameraPitch, HeightM: DefaultCameraHeight}
}

// CameraToGround returns the 4x4 transform taking camera coordinates into road coordinates.
// A point on the road directly below an unpitched camera maps to road y = 0; points above the
// road have negative y.
func (g *GroundPlane) CameraToGround() *mat.Dense {
	s, c := math.Sincos(g.PitchRad)
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, c, -s, -g.HeightM,
		0, s, c, 0,
		0, 0, 0, 1,
	})
}

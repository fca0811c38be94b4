// Package transform holds the camera models used to move between image pixels and 3D points:
// pinhole intrinsics, the camera-to-ground extrinsics and two-view / multi-view triangulation.
package transform

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
// Width and Height are informational and may be left at zero.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px" yaml:"width_px" validate:"gte=0"`
	Height int     `json:"height_px" yaml:"height_px" validate:"gte=0"`
	Fx     float64 `json:"fx" yaml:"fx" validate:"gt=0"`
	Fy     float64 `json:"fy" yaml:"fy" validate:"gt=0"`
	Ppx    float64 `json:"ppx" yaml:"ppx" validate:"gte=0"`
	Ppy    float64 `json:"ppy" yaml:"ppy" validate:"gte=0"`
}

// NewPinholeCameraIntrinsics returns intrinsics with a single focal length f (in pixels) and principal point (cu, cv).
func NewPinholeCameraIntrinsics(f, cu, cv float64) *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{Fx: f, Fy: f, Ppx: cu, Ppy: cv}
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width < 0 || params.Height < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	byteValue, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON file")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// PixelToPoint back-projects a pixel at depth z into camera coordinates.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	return r3.Vector{
		X: (x - params.Ppx) / params.Fx * z,
		Y: (y - params.Ppy) / params.Fy * z,
		Z: z,
	}
}

// PointToPixel projects a 3D point in camera coordinates to a sub-pixel image location.
// The second return is false when the point has zero depth.
func (params *PinholeCameraIntrinsics) PointToPixel(p r3.Vector) (r2.Point, bool) {
	if p.Z == 0 {
		return r2.Point{X: -1, Y: -1}, false
	}
	return r2.Point{X: p.X/p.Z*params.Fx + params.Ppx, Y: p.Y/p.Z*params.Fy + params.Ppy}, true
}

// ProjectionMatrix returns the 3x4 matrix K·E[0:3,0:4] mapping homogeneous points in the coordinates
// that the 4x4 extrinsic E maps from into homogeneous pixels.
func (params *PinholeCameraIntrinsics) ProjectionMatrix(extrinsic mat.Matrix) (*mat.Dense, error) {
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	if r, c := extrinsic.Dims(); r != 4 || c != 4 {
		return nil, errors.Errorf("extrinsic must be 4x4, got %dx%d", r, c)
	}
	top := mat.DenseCopyOf(extrinsic).Slice(0, 3, 0, 4)
	proj := mat.NewDense(3, 4, nil)
	proj.Mul(params.GetCameraMatrix(), top)
	return proj, nil
}

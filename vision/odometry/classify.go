package odometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/landmarks/spatialmath"
)

// PointType classifies a landmark by its visibility and its height above the assumed road plane.
// Types are ordered: a larger type is a more restrictive requirement.
type PointType int

const (
	// PointTypeNotVisible marks points too close to or behind either observing camera.
	PointTypeNotVisible PointType = -1
	// PointTypeBelowGround marks points under the road plane.
	PointTypeBelowGround PointType = 0
	// PointTypeGround marks points on or near the road plane.
	PointTypeGround PointType = 1
	// PointTypeObstacle marks points clearly above the road plane.
	PointTypeObstacle PointType = 2
)

func (t PointType) String() string {
	switch t {
	case PointTypeNotVisible:
		return "not_visible"
	case PointTypeBelowGround:
		return "below_ground"
	case PointTypeGround:
		return "ground"
	case PointTypeObstacle:
		return "obstacle"
	default:
		return "unknown"
	}
}

const (
	// nearPlaneDepth is the smallest camera depth at which a point counts as visible.
	nearPlaneDepth = 1.0
	// road-frame y thresholds; y points down so smaller y is higher above the road.
	belowGroundY = 0.5
	groundY      = -1.0

	degenerateRayNorm = 1e-10
	// degenerateRayAngle is reported for rays that cannot be measured.
	degenerateRayAngle = 1000.0
)

// GroundBand buckets a road-frame y coordinate into BelowGround, Ground or Obstacle.
func GroundBand(roadY float64) PointType {
	switch {
	case roadY > belowGroundY:
		return PointTypeBelowGround
	case roadY > groundY:
		return PointTypeGround
	default:
		return PointTypeObstacle
	}
}

// ClassifyPoint classifies p, given in current coordinates, as seen from the first and last frames of a track.
func ClassifyPoint(first, last *CameraFrame, cameraToGround mat.Matrix, p r3.Vector) PointType {
	inFirst := spatialmath.TransformPoint(first.Inverse, p)
	inLast := spatialmath.TransformPoint(last.Inverse, p)
	if inFirst.Z <= nearPlaneDepth || inLast.Z <= nearPlaneDepth {
		return PointTypeNotVisible
	}
	onRoad := spatialmath.TransformPoint(cameraToGround, inLast)
	return GroundBand(onRoad.Y)
}

// PointDistance returns the distance from p to the camera center of the given frame.
func PointDistance(frame *CameraFrame, p r3.Vector) float64 {
	return frame.Center().Distance(p)
}

// midFrameAge returns the age of the frame halfway between two ages, rounding towards the older frame.
func midFrameAge(firstAge, lastAge int) int {
	return (firstAge + lastAge + 1) / 2
}

// RayAngle returns the angle in degrees between the rays joining p to the camera centers of first and last.
// Rays of (near) zero length yield 1000.
func RayAngle(first, last *CameraFrame, p r3.Vector) float64 {
	v1 := first.Center().Sub(p)
	v2 := last.Center().Sub(p)
	n1, n2 := v1.Norm(), v2.Norm()
	if n1 < degenerateRayNorm || n2 < degenerateRayNorm {
		return degenerateRayAngle
	}
	cos := math.Abs(v1.Dot(v2)) / (n1 * n2)
	if cos > 1 {
		cos = 1
	}
	return math.Acos(cos) * 180 / math.Pi
}

package odometry

import "github.com/pkg/errors"

var (
	// ErrNotVisible is returned for candidates that lie on or behind the near plane of an observing camera.
	ErrNotVisible = errors.New("point is not visible from both track ends")
	// ErrOutOfTolerance is returned for candidates failing the point type, distance or parallax thresholds.
	ErrOutOfTolerance = errors.New("point is out of tolerance")
)

// RejectionReason tells why a lost track did not become a landmark.
type RejectionReason int

// Reasons are listed in the order the checks run.
const (
	RejectNone RejectionReason = iota
	RejectShortTrack
	RejectDegenerate
	RejectNotVisible
	RejectPointType
	RejectDiverged
	RejectExhausted
	RejectTooFar
	RejectLowParallax
)

func (r RejectionReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectShortTrack:
		return "short_track"
	case RejectDegenerate:
		return "degenerate"
	case RejectNotVisible:
		return "not_visible"
	case RejectPointType:
		return "point_type"
	case RejectDiverged:
		return "refinement_diverged"
	case RejectExhausted:
		return "refinement_exhausted"
	case RejectTooFar:
		return "too_far"
	case RejectLowParallax:
		return "low_parallax"
	default:
		return "unknown"
	}
}

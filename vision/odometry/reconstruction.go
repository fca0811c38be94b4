// Package odometry implements the landmark back end of a visual odometry pipeline: it follows matched
// features across frames, triangulates the tracks it loses, refines and classifies the resulting points,
// and keeps the accepted ones in the current camera's coordinates.
package odometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/landmarks/logging"
	"go.viam.com/landmarks/pointcloud"
	"go.viam.com/landmarks/rimage/transform"
	"go.viam.com/landmarks/spatialmath"
)

// Calibration holds the camera intrinsics and the camera-to-ground extrinsics. It is read-only after construction.
type Calibration struct {
	Intrinsics     *transform.PinholeCameraIntrinsics
	Ground         *transform.GroundPlane
	cameraToGround *mat.Dense
}

// NewCalibration validates the intrinsics and precomputes the camera-to-ground transform.
func NewCalibration(intrinsics *transform.PinholeCameraIntrinsics, ground *transform.GroundPlane) (*Calibration, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if ground == nil {
		ground = transform.NewDefaultGroundPlane()
	}
	return &Calibration{
		Intrinsics:     intrinsics,
		Ground:         ground,
		cameraToGround: ground.CameraToGround(),
	}, nil
}

// Landmark is a reconstructed point in current camera coordinates.
type Landmark struct {
	Position r3.Vector
	Type     PointType
}

// CycleStats summarizes one call to Update.
type CycleStats struct {
	Cycle          int
	FramesEvicted  int
	WindowSize     int
	MatchesSkipped int

	TracksStarted         int
	TracksExtended        int
	TracksCapped          int
	DuplicateAssociations int
	TracksLost            int
	LiveTracks            int

	PointsAdded int
	Rejections  map[RejectionReason]int
}

// Rejected returns the total number of lost tracks that did not yield a landmark.
func (s *CycleStats) Rejected() int {
	total := 0
	for _, n := range s.Rejections {
		total += n
	}
	return total
}

// Reconstructor incrementally builds a sparse landmark cloud. It is not safe for concurrent use.
type Reconstructor struct {
	calib      *Calibration
	refinement *RefinementConfig
	window     *FrameWindow
	tracks     *trackManager
	points     *pointcloud.BasicPointCloud
	logger     logging.Logger
	cycle      int
}

// NewReconstructor returns a Reconstructor for the given config.
func NewReconstructor(cfg *ReconstructionConfig, logger logging.Logger) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	calib, err := NewCalibration(cfg.CamIntrinsics, cfg.Ground)
	if err != nil {
		return nil, err
	}
	window, err := NewFrameWindow(calib.Intrinsics)
	if err != nil {
		return nil, err
	}
	logger.Infow("reconstructor ready",
		"fx", calib.Intrinsics.Fx, "ppx", calib.Intrinsics.Ppx, "ppy", calib.Intrinsics.Ppy,
		"pitch_rad", calib.Ground.PitchRad, "height_m", calib.Ground.HeightM,
		"max_track_length", cfg.MaxTrackLength)
	return &Reconstructor{
		calib:      calib,
		refinement: cfg.Refinement,
		window:     window,
		tracks:     newTrackManager(window, cfg.MaxTrackLength),
		points:     pointcloud.New(),
		logger:     logger,
	}, nil
}

// Update runs one reconstruction cycle.
//
// motion maps the previous call's camera coordinates into the coordinates of the camera this call adds to
// the window; that camera observed the Prev pixels of matches, and the camera added by the next call
// observed their Curr pixels. Stored landmarks are re-expressed through motion before anything else.
//
// An error is only returned for a malformed motion, in which case nothing is changed.
func (r *Reconstructor) Update(matches []Match, motion mat.Matrix, params UpdateParams) (*CycleStats, error) {
	if err := spatialmath.CheckRigidTransform(motion); err != nil {
		r.logger.Warnw("rejecting update", "cycle", r.cycle, "error", err)
		return nil, err
	}
	evicted, err := r.window.AgeAndCompose(motion)
	if err != nil {
		return nil, err
	}
	r.points.Transform(motion)
	r.window.PushCurrent()

	stats := &CycleStats{
		Cycle:         r.cycle,
		FramesEvicted: evicted,
		Rejections:    make(map[RejectionReason]int),
	}
	r.cycle++

	valid := matches[:0:0]
	for _, m := range matches {
		if !finitePixel(m.Prev) || !finitePixel(m.Curr) {
			stats.MatchesSkipped++
			continue
		}
		valid = append(valid, m)
	}
	if stats.MatchesSkipped > 0 {
		r.logger.Warnw("skipping matches with non-finite pixels", "count", stats.MatchesSkipped)
	}

	assoc, err := r.tracks.associate(valid)
	if err != nil {
		return nil, err
	}
	stats.TracksStarted = assoc.started
	stats.TracksExtended = assoc.extended
	stats.TracksCapped = assoc.capped
	stats.DuplicateAssociations = assoc.duplicates

	lost, err := r.tracks.sweep()
	if err != nil {
		return nil, err
	}
	stats.TracksLost = len(lost)
	for _, tr := range lost {
		lm, reason, err := r.reconstruct(tr, params)
		if reason != RejectNone {
			stats.Rejections[reason]++
			if reason != RejectShortTrack {
				r.logger.Debugw("landmark rejected", "track", tr.ID, "observations", len(tr.Pixels),
					"reason", reason, "error", err)
			}
			continue
		}
		if err := r.points.Set(lm.Position, pointcloud.NewValueData(int(lm.Type))); err != nil {
			return nil, errors.Wrapf(err, "track %s", tr.ID)
		}
		stats.PointsAdded++
		r.logger.Debugw("landmark accepted", "track", tr.ID, "observations", len(tr.Pixels),
			"type", lm.Type, "position", lm.Position)
	}
	stats.WindowSize = r.window.Len()
	stats.LiveTracks = r.tracks.live()

	r.logger.Debugw("cycle done",
		"cycle", stats.Cycle,
		"matches", len(matches),
		"started", stats.TracksStarted,
		"lost", stats.TracksLost,
		"added", stats.PointsAdded,
		"rejected", stats.Rejected(),
		"window", stats.WindowSize,
		"live_tracks", stats.LiveTracks,
		"points", r.points.Size())
	return stats, nil
}

// UpdateFromMotion is Update for a motion given as a rotation and a translation.
func (r *Reconstructor) UpdateFromMotion(matches []Match, motion *Motion3D, params UpdateParams) (*CycleStats, error) {
	t, err := motion.Transform()
	if err != nil {
		return nil, err
	}
	return r.Update(matches, t, params)
}

// reconstruct turns a lost track into a landmark. A RejectionReason other than RejectNone, with its cause,
// is returned for tracks that do not pass every stage.
func (r *Reconstructor) reconstruct(tr *Track, params UpdateParams) (Landmark, RejectionReason, error) {
	if len(tr.Pixels) < params.MinTrackLength {
		return Landmark{}, RejectShortTrack, nil
	}
	frames, err := r.window.Span(tr.First, tr.Last)
	if err != nil {
		return Landmark{}, RejectDegenerate, err
	}
	if len(frames) != len(tr.Pixels) {
		return Landmark{}, RejectDegenerate, errors.Errorf("track spans %d frames but has %d observations",
			len(frames), len(tr.Pixels))
	}
	first, last := frames[0], frames[len(frames)-1]

	p, err := transform.TriangulateLinear(first.Projection, last.Projection, tr.Pixels[0], tr.Pixels[len(tr.Pixels)-1])
	if err != nil {
		return Landmark{}, RejectDegenerate, err
	}

	pointType := ClassifyPoint(first, last, r.calib.cameraToGround, p)
	if pointType < params.MinPointType {
		if pointType == PointTypeNotVisible {
			return Landmark{}, RejectNotVisible, ErrNotVisible
		}
		return Landmark{}, RejectPointType, errors.Wrapf(ErrOutOfTolerance, "point type %s is below %s",
			pointType, params.MinPointType)
	}

	p, err = RefinePoint(frames, tr.Pixels, p, r.refinement)
	if err != nil {
		if errors.Is(err, ErrRefinementExhausted) {
			return Landmark{}, RejectExhausted, err
		}
		return Landmark{}, RejectDiverged, err
	}

	mid, err := r.window.FrameAtAge(midFrameAge(first.Age, last.Age))
	if err != nil {
		return Landmark{}, RejectDegenerate, err
	}
	if dist := PointDistance(mid, p); !(dist < params.MaxDistance) {
		return Landmark{}, RejectTooFar, errors.Wrapf(ErrOutOfTolerance, "distance %.2f", dist)
	}
	if angle := RayAngle(first, last, p); !(angle > params.MinAngleDeg) {
		return Landmark{}, RejectLowParallax, errors.Wrapf(ErrOutOfTolerance, "ray angle %.3f deg", angle)
	}
	if r.debugEnabled() {
		projs := make([]mat.Matrix, len(frames))
		for i, f := range frames {
			projs[i] = f.Projection
		}
		if rms, err := transform.ReprojectionError(projs, tr.Pixels, p); err == nil {
			r.logger.Debugw("landmark residual", "track", tr.ID, "rms_px", rms)
		}
	}
	return Landmark{Position: p, Type: pointType}, RejectNone, nil
}

// Points returns a snapshot of the stored landmarks in current camera coordinates.
func (r *Reconstructor) Points() []Landmark {
	stored := r.points.Points()
	out := make([]Landmark, len(stored))
	for i, pd := range stored {
		out[i] = Landmark{Position: pd.P, Type: PointType(pd.D.Value())}
	}
	return out
}

// Cloud returns a read-only view of the landmark cloud, with point types as point values.
// The view is live: it changes on every Update.
func (r *Reconstructor) Cloud() pointcloud.Reader {
	return pointcloud.ReadOnly(r.points)
}

// Calibration returns the calibration in use.
func (r *Reconstructor) Calibration() *Calibration {
	return r.calib
}

// Reset drops every frame, track and landmark.
func (r *Reconstructor) Reset() {
	r.tracks.reset()
	r.window.Reset()
	r.points.Clear()
	r.cycle = 0
}

// debugEnabled reports whether debug entries reach any output.
func (r *Reconstructor) debugEnabled() bool {
	return r.logger.AsZap().Desugar().Core().Enabled(zapcore.DebugLevel)
}

func finitePixel(p r2.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

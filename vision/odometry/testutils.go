package odometry

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/landmarks/rimage/transform"
	"go.viam.com/landmarks/spatialmath"
)

// minSimulatedDepth is the depth below which a simulated landmark is not observed.
const minSimulatedDepth = 1.5

// SyntheticSceneConfig describes a simulated drive through a random landmark field.
// World coordinates are the coordinates of the first camera.
type SyntheticSceneConfig struct {
	Intrinsics   *transform.PinholeCameraIntrinsics
	NumLandmarks int
	// NumPoses is the number of camera poses, and so the number of update cycles.
	NumPoses    int
	ForwardStep float64
	LateralStep float64
	YawStep     float64
	// PixelNoise is the standard deviation of the gaussian noise added to observations.
	PixelNoise float64
	// GroundFraction is the share of landmarks placed on the road, CameraHeight below the first camera.
	GroundFraction float64
	CameraHeight   float64
	Seed           int64
}

// DefaultSyntheticSceneConfig returns a noiseless scene seen through a KITTI-like camera.
func DefaultSyntheticSceneConfig() SyntheticSceneConfig {
	return SyntheticSceneConfig{
		Intrinsics: &transform.PinholeCameraIntrinsics{
			Width: 1241, Height: 376,
			Fx: 718.856, Fy: 718.856,
			Ppx: 607.1928, Ppy: 185.2157,
		},
		NumLandmarks:   300,
		NumPoses:       12,
		ForwardStep:    1,
		LateralStep:    0.05,
		YawStep:        0.01,
		GroundFraction: 0.3,
		CameraHeight:   transform.DefaultCameraHeight,
		Seed:           1,
	}
}

// SyntheticScene is a simulated drive along with the update cycles it produces.
type SyntheticScene struct {
	Config    SyntheticSceneConfig
	Landmarks []r3.Vector
	// WorldToCamera holds, per pose, the transform from world to camera coordinates.
	WorldToCamera []*mat.Dense
	Sequence      *Sequence
}

// NewSyntheticScene simulates a drive. Cycle k adds the camera of pose k: its motion maps pose k-1 camera
// coordinates into pose k camera coordinates, and its matches link the landmarks seen from both pose k and
// pose k+1. The last cycle has no matches, so every track is lost by the end of the sequence.
func NewSyntheticScene(cfg SyntheticSceneConfig) (*SyntheticScene, error) {
	if err := cfg.Intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if cfg.Intrinsics.Width == 0 || cfg.Intrinsics.Height == 0 {
		return nil, errors.New("simulated intrinsics need an image size")
	}
	if cfg.NumPoses < 2 || cfg.NumLandmarks < 1 {
		return nil, errors.Errorf("need at least 2 poses and 1 landmark, got %d and %d", cfg.NumPoses, cfg.NumLandmarks)
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec

	scene := &SyntheticScene{Config: cfg}
	travel := cfg.ForwardStep * float64(cfg.NumPoses)
	for j := 0; j < cfg.NumLandmarks; j++ {
		p := r3.Vector{
			X: rng.Float64()*16 - 8,
			Y: rng.Float64()*3.5 - 3,
			Z: 6 + rng.Float64()*(travel+30),
		}
		if rng.Float64() < cfg.GroundFraction {
			p.Y = cfg.CameraHeight
		}
		scene.Landmarks = append(scene.Landmarks, p)
	}

	for i := 0; i < cfg.NumPoses; i++ {
		center := r3.Vector{X: cfg.LateralStep * float64(i), Z: cfg.ForwardStep * float64(i)}
		camToWorld, err := spatialmath.NewTransformFromRotationTranslation(
			spatialmath.RotationMatrixY(cfg.YawStep*float64(i)), center)
		if err != nil {
			return nil, err
		}
		worldToCam, err := spatialmath.InvertTransform(camToWorld)
		if err != nil {
			return nil, err
		}
		scene.WorldToCamera = append(scene.WorldToCamera, worldToCam)
	}

	scene.Sequence = &Sequence{}
	for k := 0; k < cfg.NumPoses; k++ {
		motion := spatialmath.NewIdentityTransform()
		if k > 0 {
			prevToWorld, err := spatialmath.InvertTransform(scene.WorldToCamera[k-1])
			if err != nil {
				return nil, err
			}
			motion = spatialmath.ComposeTransforms(scene.WorldToCamera[k], prevToWorld)
		}
		var matches []Match
		if k+1 < cfg.NumPoses {
			for j, lm := range scene.Landmarks {
				prev, ok := scene.observe(k, lm, rng)
				if !ok {
					continue
				}
				curr, ok := scene.observe(k+1, lm, rng)
				if !ok {
					continue
				}
				matches = append(matches, Match{
					PrevID: k*cfg.NumLandmarks + j, Prev: prev,
					CurrID: (k+1)*cfg.NumLandmarks + j, Curr: curr,
				})
			}
		}
		scene.Sequence.Cycles = append(scene.Sequence.Cycles, NewCycleRecord(motion, matches))
	}
	return scene, nil
}

// observe projects a world point into the image of a pose, adding pixel noise.
func (s *SyntheticScene) observe(pose int, world r3.Vector, rng *rand.Rand) (r2.Point, bool) {
	cam := spatialmath.TransformPoint(s.WorldToCamera[pose], world)
	if cam.Z < minSimulatedDepth {
		return r2.Point{}, false
	}
	px, ok := s.Config.Intrinsics.PointToPixel(cam)
	if !ok {
		return r2.Point{}, false
	}
	if s.Config.PixelNoise > 0 {
		px.X += rng.NormFloat64() * s.Config.PixelNoise
		px.Y += rng.NormFloat64() * s.Config.PixelNoise
	}
	if px.X < 0 || px.Y < 0 || px.X >= float64(s.Config.Intrinsics.Width) || px.Y >= float64(s.Config.Intrinsics.Height) {
		return r2.Point{}, false
	}
	return px, true
}

// LandmarksInCamera returns every landmark in the camera coordinates of a pose.
func (s *SyntheticScene) LandmarksInCamera(pose int) []r3.Vector {
	out := make([]r3.Vector, len(s.Landmarks))
	for i, lm := range s.Landmarks {
		out[i] = spatialmath.TransformPoint(s.WorldToCamera[pose], lm)
	}
	return out
}

// NearestLandmark returns the distance from p to the closest of the given points.
func NearestLandmark(p r3.Vector, landmarks []r3.Vector) float64 {
	best := math.Inf(1)
	for _, lm := range landmarks {
		if d := lm.Distance(p); d < best {
			best = d
		}
	}
	return best
}

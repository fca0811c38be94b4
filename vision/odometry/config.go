package odometry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"go.viam.com/landmarks/rimage/transform"
)

// DefaultMaxTrackLength is the default cap on the number of observations kept per track.
const DefaultMaxTrackLength = 50

// UpdateParams are the per-cycle acceptance thresholds for new landmarks.
type UpdateParams struct {
	// MinTrackLength is the minimum number of observations a lost track needs to be reconstructed.
	MinTrackLength int `json:"min_track_length" yaml:"min_track_length" validate:"gte=2"`
	// MinPointType is the least restrictive point type that is kept.
	MinPointType PointType `json:"min_point_type" yaml:"min_point_type" validate:"gte=-1,lte=2"`
	// MaxDistance bounds the distance between a landmark and the camera halfway along its track.
	MaxDistance float64 `json:"max_distance" yaml:"max_distance" validate:"gt=0"`
	// MinAngleDeg is the minimum parallax, in degrees, between the first and last rays.
	MinAngleDeg float64 `json:"min_angle_deg" yaml:"min_angle_deg" validate:"gte=0"`
}

// DefaultUpdateParams returns thresholds suited to a car-mounted camera.
func DefaultUpdateParams() UpdateParams {
	return UpdateParams{
		MinTrackLength: 2,
		MinPointType:   PointTypeBelowGround,
		MaxDistance:    30,
		MinAngleDeg:    2,
	}
}

// ReconstructionConfig contains the parameters needed to reconstruct landmarks from feature tracks.
type ReconstructionConfig struct {
	CamIntrinsics  *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters" yaml:"intrinsic_parameters" validate:"required"`
	Ground         *transform.GroundPlane             `json:"ground" yaml:"ground" validate:"required"`
	MaxTrackLength int                                `json:"max_track_length" yaml:"max_track_length" validate:"gte=2"`
	Refinement     *RefinementConfig                  `json:"refinement" yaml:"refinement" validate:"required"`
	Update         UpdateParams                       `json:"update" yaml:"update"`
}

// DefaultReconstructionConfig returns a config with every field but the intrinsics set.
func DefaultReconstructionConfig() *ReconstructionConfig {
	return &ReconstructionConfig{
		Ground:         transform.NewDefaultGroundPlane(),
		MaxTrackLength: DefaultMaxTrackLength,
		Refinement:     DefaultRefinementConfig(),
		Update:         DefaultUpdateParams(),
	}
}

// Validate checks struct constraints and the camera intrinsics.
func (cfg *ReconstructionConfig) Validate() error {
	if cfg == nil {
		return errors.New("reconstruction config is nil")
	}
	var err error
	if vErr := validator.New().Struct(cfg); vErr != nil {
		err = multierr.Append(err, vErr)
	}
	if cfg.CamIntrinsics != nil {
		err = multierr.Append(err, cfg.CamIntrinsics.CheckValid())
	}
	return err
}

// LoadReconstructionConfig loads a reconstruction configuration from a json or yaml file.
// Fields missing from the file keep their default values.
func LoadReconstructionConfig(path string) (*ReconstructionConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	cfg := DefaultReconstructionConfig()
	if err := unmarshalByExtension(path, data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid reconstruction config %q", path)
	}
	return cfg, nil
}

func unmarshalByExtension(path string, data []byte, out interface{}) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrapf(err, "error parsing JSON file %q", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return errors.Wrapf(err, "error parsing YAML file %q", path)
		}
	default:
		return errors.Errorf("unsupported file extension %q", ext)
	}
	return nil
}

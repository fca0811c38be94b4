package odometry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// MatchRecord is the serialized form of a Match.
type MatchRecord struct {
	PrevID int     `json:"prev_id" yaml:"prev_id" validate:"gte=0"`
	PrevU  float64 `json:"prev_u" yaml:"prev_u"`
	PrevV  float64 `json:"prev_v" yaml:"prev_v"`
	CurrID int     `json:"curr_id" yaml:"curr_id" validate:"gte=0"`
	CurrU  float64 `json:"curr_u" yaml:"curr_u"`
	CurrV  float64 `json:"curr_v" yaml:"curr_v"`
}

// CycleRecord is the input of one Update call: a row-major 4x4 motion and the matches.
type CycleRecord struct {
	Motion  []float64     `json:"motion" yaml:"motion" validate:"len=16"`
	Matches []MatchRecord `json:"matches" yaml:"matches" validate:"dive"`
}

// Sequence is a recorded stream of update cycles.
type Sequence struct {
	Cycles []CycleRecord `json:"cycles" yaml:"cycles" validate:"dive"`
}

// NewCycleRecord serializes a cycle.
func NewCycleRecord(motion mat.Matrix, matches []Match) CycleRecord {
	rec := CycleRecord{Motion: make([]float64, 0, 16), Matches: make([]MatchRecord, len(matches))}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			rec.Motion = append(rec.Motion, motion.At(i, j))
		}
	}
	for i, m := range matches {
		rec.Matches[i] = MatchRecord{
			PrevID: m.PrevID, PrevU: m.Prev.X, PrevV: m.Prev.Y,
			CurrID: m.CurrID, CurrU: m.Curr.X, CurrV: m.Curr.Y,
		}
	}
	return rec
}

// MotionMatrix returns the cycle's motion as a 4x4 matrix.
func (c *CycleRecord) MotionMatrix() (*mat.Dense, error) {
	if len(c.Motion) != 16 {
		return nil, errors.Errorf("motion needs 16 values, got %d", len(c.Motion))
	}
	return mat.NewDense(4, 4, append([]float64(nil), c.Motion...)), nil
}

// ToMatches returns the cycle's matches.
func (c *CycleRecord) ToMatches() []Match {
	matches := make([]Match, len(c.Matches))
	for i, m := range c.Matches {
		matches[i] = Match{
			PrevID: m.PrevID, Prev: r2.Point{X: m.PrevU, Y: m.PrevV},
			CurrID: m.CurrID, Curr: r2.Point{X: m.CurrU, Y: m.CurrV},
		}
	}
	return matches
}

// LoadSequence reads a json or yaml sequence file.
func LoadSequence(path string) (*Sequence, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	var seq Sequence
	if err := unmarshalByExtension(path, data, &seq); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&seq); err != nil {
		return nil, errors.Wrapf(err, "invalid sequence %q", path)
	}
	return &seq, nil
}

// SaveSequence writes a sequence as json or yaml depending on the file extension.
func SaveSequence(seq *Sequence, path string) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = json.MarshalIndent(seq, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(seq)
	default:
		return errors.Errorf("unsupported file extension %q", ext)
	}
	if err != nil {
		return errors.Wrap(err, "cannot encode sequence")
	}
	return os.WriteFile(path, data, 0o600)
}

// Replay feeds every cycle of seq to r and returns the per-cycle stats.
func Replay(r *Reconstructor, seq *Sequence, params UpdateParams) ([]*CycleStats, error) {
	all := make([]*CycleStats, 0, len(seq.Cycles))
	for i := range seq.Cycles {
		motion, err := seq.Cycles[i].MotionMatrix()
		if err != nil {
			return all, errors.Wrapf(err, "cycle %d", i)
		}
		stats, err := r.Update(seq.Cycles[i].ToMatches(), motion, params)
		if err != nil {
			return all, errors.Wrapf(err, "cycle %d", i)
		}
		all = append(all, stats)
	}
	return all, nil
}

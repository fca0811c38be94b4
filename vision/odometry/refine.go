package odometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// minProjectedDepthSq is the smallest squared homogeneous depth for which a projection is differentiated.
const minProjectedDepthSq = 1e-10

var (
	// ErrRefinementDiverged is returned when a Gauss-Newton step cannot be computed.
	ErrRefinementDiverged = errors.New("point refinement failed")
	// ErrRefinementExhausted is returned when refinement does not converge within the iteration budget.
	ErrRefinementExhausted = errors.New("point refinement did not converge")
)

// RefineResult is the outcome of a single Gauss-Newton step.
type RefineResult int

const (
	// RefineUpdated means the point moved by more than the tolerance.
	RefineUpdated RefineResult = iota
	// RefineConverged means every component of the step was below the tolerance.
	RefineConverged
	// RefineFailed means the step could not be computed.
	RefineFailed
)

func (r RefineResult) String() string {
	switch r {
	case RefineUpdated:
		return "updated"
	case RefineConverged:
		return "converged"
	case RefineFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RefinementConfig tunes the Gauss-Newton landmark refinement.
type RefinementConfig struct {
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations" validate:"gt=0"`
	StepSize      float64 `json:"step_size" yaml:"step_size" validate:"gt=0"`
	Tolerance     float64 `json:"tolerance" yaml:"tolerance" validate:"gt=0"`
}

// DefaultRefinementConfig returns the refinement settings used when none are configured.
func DefaultRefinementConfig() *RefinementConfig {
	return &RefinementConfig{
		MaxIterations: 20,
		StepSize:      1,
		Tolerance:     1e-5,
	}
}

// RefinePoint minimizes the reprojection error of p over every frame of a track, frames[i] having observed pixels[i].
// It returns the refined point only if refinement converged.
func RefinePoint(frames []*CameraFrame, pixels []r2.Point, p r3.Vector, cfg *RefinementConfig) (r3.Vector, error) {
	if len(frames) != len(pixels) {
		return r3.Vector{}, errors.Errorf("got %d frames for %d observations", len(frames), len(pixels))
	}
	if len(frames) < 2 {
		return r3.Vector{}, errors.New("refinement needs at least 2 observations")
	}
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		switch gaussNewtonStep(frames, pixels, &p, cfg.StepSize, cfg.Tolerance) {
		case RefineConverged:
			return p, nil
		case RefineFailed:
			return r3.Vector{}, errors.Wrapf(ErrRefinementDiverged, "iteration %d", iter)
		case RefineUpdated:
		}
	}
	return r3.Vector{}, errors.Wrapf(ErrRefinementExhausted, "%d iterations", cfg.MaxIterations)
}

// gaussNewtonStep solves the normal equations JᵀJ·δ = Jᵀ(observed-predicted) and moves p by stepSize·δ.
func gaussNewtonStep(frames []*CameraFrame, pixels []r2.Point, p *r3.Vector, stepSize, tolerance float64) RefineResult {
	n := len(frames)
	jacobian := make([]float64, 2*n*3)
	residual := make([]float64, 2*n)
	x := [4]float64{p.X, p.Y, p.Z, 1}

	for i, frame := range frames {
		proj := frame.Projection
		var a, b, c float64
		for j := 0; j < 4; j++ {
			a += proj.At(0, j) * x[j]
			b += proj.At(1, j) * x[j]
			c += proj.At(2, j) * x[j]
		}
		cc := c * c
		if cc < minProjectedDepthSq {
			return RefineFailed
		}
		for j := 0; j < 3; j++ {
			jacobian[(2*i)*3+j] = (proj.At(0, j)*c - proj.At(2, j)*a) / cc
			jacobian[(2*i+1)*3+j] = (proj.At(1, j)*c - proj.At(2, j)*b) / cc
		}
		residual[2*i] = pixels[i].X - a/c
		residual[2*i+1] = pixels[i].Y - b/c
	}

	J := mat.NewDense(2*n, 3, jacobian)
	r := mat.NewVecDense(2*n, residual)
	var A mat.Dense
	A.Mul(J.T(), J)
	var B mat.VecDense
	B.MulVec(J.T(), r)

	var delta mat.VecDense
	if err := delta.SolveVec(&A, &B); err != nil {
		return RefineFailed
	}

	step := r3.Vector{X: delta.AtVec(0), Y: delta.AtVec(1), Z: delta.AtVec(2)}
	if anyNonFinite(step) {
		return RefineFailed
	}
	*p = p.Add(step.Mul(stepSize))
	if math.Abs(step.X) < tolerance && math.Abs(step.Y) < tolerance && math.Abs(step.Z) < tolerance {
		return RefineConverged
	}
	return RefineUpdated
}

func anyNonFinite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return true
		}
	}
	return false
}

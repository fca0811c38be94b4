package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// homogeneousEpsilon is the smallest homogeneous scale accepted from a triangulation.
const homogeneousEpsilon = 1e-10

var (
	// ErrPointAtInfinity is returned when the triangulated homogeneous point has (near) zero scale.
	ErrPointAtInfinity = errors.New("triangulated point is at infinity")
	// ErrBehindCamera is returned when projecting a point with (near) zero depth.
	ErrBehindCamera = errors.New("point has no finite projection")
)

// TriangulateLinear computes the 3D point observed at pixel p1 through projection P1 and at pixel p2 through P2.
// Each view contributes the rows u·P[2]-P[0] and v·P[2]-P[1]; the point is the right singular vector of the
// smallest singular value, de-homogenized.
func TriangulateLinear(proj1, proj2 mat.Matrix, p1, p2 r2.Point) (r3.Vector, error) {
	return TriangulateMultiView([]mat.Matrix{proj1, proj2}, []r2.Point{p1, p2})
}

// TriangulateMultiView is TriangulateLinear over any number (at least 2) of views.
func TriangulateMultiView(projs []mat.Matrix, pixels []r2.Point) (r3.Vector, error) {
	if len(projs) != len(pixels) {
		return r3.Vector{}, errors.Errorf("got %d projections for %d pixels", len(projs), len(pixels))
	}
	if len(projs) < 2 {
		return r3.Vector{}, errors.New("triangulation needs at least 2 views")
	}
	A := mat.NewDense(2*len(projs), 4, nil)
	for i, proj := range projs {
		if r, c := proj.Dims(); r != 3 || c != 4 {
			return r3.Vector{}, errors.Errorf("projection %d must be 3x4, got %dx%d", i, r, c)
		}
		u, v := pixels[i].X, pixels[i].Y
		for j := 0; j < 4; j++ {
			A.Set(2*i, j, proj.At(2, j)*u-proj.At(0, j))
			A.Set(2*i+1, j, proj.At(2, j)*v-proj.At(1, j))
		}
	}

	// svd
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return r3.Vector{}, errors.New("failed to factorize triangulation system")
	}
	var V mat.Dense
	svd.VTo(&V)
	X := V.ColView(3)
	w := X.AtVec(3)
	if math.Abs(w) < homogeneousEpsilon {
		return r3.Vector{}, ErrPointAtInfinity
	}
	return r3.Vector{X: X.AtVec(0) / w, Y: X.AtVec(1) / w, Z: X.AtVec(2) / w}, nil
}

// Project maps a 3D point through a 3x4 projection matrix and returns the pixel and the homogeneous depth.
func Project(proj mat.Matrix, p r3.Vector) (r2.Point, float64, error) {
	a := proj.At(0, 0)*p.X + proj.At(0, 1)*p.Y + proj.At(0, 2)*p.Z + proj.At(0, 3)
	b := proj.At(1, 0)*p.X + proj.At(1, 1)*p.Y + proj.At(1, 2)*p.Z + proj.At(1, 3)
	c := proj.At(2, 0)*p.X + proj.At(2, 1)*p.Y + proj.At(2, 2)*p.Z + proj.At(2, 3)
	if c*c < homogeneousEpsilon {
		return r2.Point{}, c, ErrBehindCamera
	}
	return r2.Point{X: a / c, Y: b / c}, c, nil
}

// ReprojectionError returns the root mean square pixel distance between the observations and
// the projections of p.
func ReprojectionError(projs []mat.Matrix, pixels []r2.Point, p r3.Vector) (float64, error) {
	if len(projs) != len(pixels) || len(projs) == 0 {
		return 0, errors.Errorf("got %d projections for %d pixels", len(projs), len(pixels))
	}
	var sum float64
	for i, proj := range projs {
		px, _, err := Project(proj, p)
		if err != nil {
			return 0, errors.Wrapf(err, "view %d", i)
		}
		d := px.Sub(pixels[i])
		sum += d.Dot(d)
	}
	return math.Sqrt(sum / float64(len(projs))), nil
}

package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/landmarks/spatialmath"
)

// BasicPointCloud is the basic implementation of the PointCloud interface backed by
// an ordered slice of points.
type BasicPointCloud struct {
	points []PointAndData
	meta   MetaData
}

// New returns an empty BasicPointCloud.
func New() *BasicPointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated BasicPointCloud.
func NewWithPrealloc(size int) *BasicPointCloud {
	return &BasicPointCloud{
		points: make([]PointAndData, 0, size),
		meta:   NewMetaData(),
	}
}

// Size returns the number of points in the cloud.
func (cloud *BasicPointCloud) Size() int {
	return len(cloud.points)
}

// MetaData returns the bounds and value flags of the stored points.
func (cloud *BasicPointCloud) MetaData() MetaData {
	return cloud.meta
}

// Set appends the point after validating that all of its coordinates are finite.
func (cloud *BasicPointCloud) Set(p r3.Vector, d Data) error {
	if !isFinite(p) {
		return errors.Errorf("cannot store non-finite point %v", p)
	}
	cloud.points = append(cloud.points, PointAndData{P: p, D: d})
	cloud.meta.Merge(p, d)
	return nil
}

// Iterate visits points in insertion order.
func (cloud *BasicPointCloud) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	start, end := 0, len(cloud.points)
	if numBatches > 0 {
		batchSize := (len(cloud.points) + numBatches - 1) / numBatches
		start = myBatch * batchSize
		end = start + batchSize
		if end > len(cloud.points) {
			end = len(cloud.points)
		}
	}
	for i := start; i < end; i++ {
		if !fn(cloud.points[i].P, cloud.points[i].D) {
			return
		}
	}
}

// Transform re-expresses every stored point through the homogeneous transform t, in place.
func (cloud *BasicPointCloud) Transform(t mat.Matrix) {
	cloud.meta = NewMetaData()
	for i := range cloud.points {
		cloud.points[i].P = spatialmath.TransformPoint(t, cloud.points[i].P)
		cloud.meta.Merge(cloud.points[i].P, cloud.points[i].D)
	}
}

// Points returns a copy of the stored points and their data.
func (cloud *BasicPointCloud) Points() []PointAndData {
	out := make([]PointAndData, len(cloud.points))
	copy(out, cloud.points)
	return out
}

// Clear removes all points, keeping the allocated capacity.
func (cloud *BasicPointCloud) Clear() {
	cloud.points = cloud.points[:0]
	cloud.meta = NewMetaData()
}

func isFinite(p r3.Vector) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

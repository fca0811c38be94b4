package pointcloud

import (
	"github.com/golang/geo/r3"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Data describes data associated single point within a PointCloud. Data is immutable once created.
type Data interface {
	// HasValue returns whether or not this point has some user data value
	// associated with it.
	HasValue() bool

	// Value returns the user data set value, if it exists.
	Value() int
}

type basicData struct {
	hasValue bool
	value    int
}

// NewBasicData returns a point that is solely positionally based.
func NewBasicData() Data {
	return basicData{}
}

// NewValueData returns a point that has both position and a user data value.
func NewValueData(v int) Data {
	return basicData{value: v, hasValue: true}
}

func (bp basicData) HasValue() bool {
	return bp.hasValue
}

func (bp basicData) Value() int {
	return bp.value
}

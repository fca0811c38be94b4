package odometry

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/landmarks/rimage/transform"
	"go.viam.com/landmarks/spatialmath"
)

// ErrStaleFrame is returned when a FrameHandle refers to a frame that has been evicted.
var ErrStaleFrame = errors.New("frame handle refers to an evicted frame")

// CameraFrame is a historical camera pose expressed relative to the current camera.
type CameraFrame struct {
	// Forward maps this frame's camera coordinates into current coordinates.
	Forward *mat.Dense
	// Inverse maps current coordinates into this frame's camera coordinates.
	Inverse *mat.Dense
	// Projection is K·Inverse[0:3,0:4].
	Projection *mat.Dense
	// Age is the number of cycles since this frame was the newest one.
	Age int
	// LiveTracks counts the live tracks whose first observation belongs to this frame.
	LiveTracks int
}

// Center returns the frame's camera center in current coordinates.
func (f *CameraFrame) Center() r3.Vector {
	return spatialmath.TranslationOf(f.Forward)
}

// FrameHandle references a frame held by a FrameWindow. The handle goes stale once its frame is evicted.
type FrameHandle struct {
	slot       int
	generation uint32
}

type frameSlot struct {
	frame      CameraFrame
	generation uint32
	live       bool
}

// FrameWindow is a time-ordered buffer of camera frames. Frames live in reusable slots and are
// referenced through generation-checked handles.
type FrameWindow struct {
	intrinsics *transform.PinholeCameraIntrinsics

	// slots are allocated one by one so that *CameraFrame pointers stay valid while the window grows.
	slots []*frameSlot
	free  []int
	// order holds slot indices, oldest frame first.
	order []int
}

// NewFrameWindow returns an empty window projecting through the given intrinsics.
func NewFrameWindow(intrinsics *transform.PinholeCameraIntrinsics) (*FrameWindow, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return &FrameWindow{intrinsics: intrinsics}, nil
}

// Len returns the number of retained frames.
func (w *FrameWindow) Len() int {
	return len(w.order)
}

// AgeAndCompose composes motion into every retained frame, recomputes inverse and projection matrices,
// increments ages and then evicts frames from the oldest end while they have no live tracks.
// It returns the number of evicted frames. On error the window is left unchanged.
func (w *FrameWindow) AgeAndCompose(motion mat.Matrix) (int, error) {
	type aged struct {
		forward, inverse, projection *mat.Dense
	}
	updates := make([]aged, len(w.order))
	for i, slot := range w.order {
		f := &w.slots[slot].frame
		forward := spatialmath.ComposeTransforms(motion, f.Forward)
		inverse, err := spatialmath.InvertTransform(forward)
		if err != nil {
			return 0, errors.Wrapf(err, "frame of age %d", f.Age)
		}
		projection, err := w.intrinsics.ProjectionMatrix(inverse)
		if err != nil {
			return 0, err
		}
		updates[i] = aged{forward, inverse, projection}
	}
	for i, slot := range w.order {
		f := &w.slots[slot].frame
		f.Forward, f.Inverse, f.Projection = updates[i].forward, updates[i].inverse, updates[i].projection
		f.Age++
	}
	return w.evict(), nil
}

func (w *FrameWindow) evict() int {
	evicted := 0
	for len(w.order) > 0 && w.slots[w.order[0]].frame.LiveTracks == 0 {
		slot := w.order[0]
		w.order = w.order[1:]
		w.slots[slot].live = false
		w.slots[slot].generation++
		w.slots[slot].frame = CameraFrame{}
		w.free = append(w.free, slot)
		evicted++
	}
	return evicted
}

// PushCurrent appends a new identity frame at the newest end and returns its handle.
func (w *FrameWindow) PushCurrent() FrameHandle {
	identity := spatialmath.NewIdentityTransform()
	projection := mat.NewDense(3, 4, nil)
	projection.Mul(w.intrinsics.GetCameraMatrix(), identity.Slice(0, 3, 0, 4))
	frame := CameraFrame{
		Forward:    identity,
		Inverse:    spatialmath.NewIdentityTransform(),
		Projection: projection,
	}

	var slot int
	if n := len(w.free); n > 0 {
		slot = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		w.slots = append(w.slots, &frameSlot{})
		slot = len(w.slots) - 1
	}
	w.slots[slot].frame = frame
	w.slots[slot].live = true
	w.order = append(w.order, slot)
	return FrameHandle{slot: slot, generation: w.slots[slot].generation}
}

// Newest returns the handle of the newest frame. The window must not be empty.
func (w *FrameWindow) Newest() FrameHandle {
	slot := w.order[len(w.order)-1]
	return FrameHandle{slot: slot, generation: w.slots[slot].generation}
}

// Frame resolves a handle.
func (w *FrameWindow) Frame(h FrameHandle) (*CameraFrame, error) {
	if h.slot < 0 || h.slot >= len(w.slots) {
		return nil, errors.Wrapf(ErrStaleFrame, "slot %d out of range", h.slot)
	}
	s := w.slots[h.slot]
	if !s.live || s.generation != h.generation {
		return nil, ErrStaleFrame
	}
	return &s.frame, nil
}

// FrameAtAge returns the frame observed age cycles ago.
func (w *FrameWindow) FrameAtAge(age int) (*CameraFrame, error) {
	if len(w.order) == 0 {
		return nil, errors.Errorf("no frame of age %d in an empty window", age)
	}
	// ages are contiguous, increasing from the newest end
	idx := len(w.order) - 1 - (age - w.slots[w.order[len(w.order)-1]].frame.Age)
	if idx < 0 || idx >= len(w.order) {
		return nil, errors.Errorf("no frame of age %d in a window of %d frames", age, len(w.order))
	}
	return &w.slots[w.order[idx]].frame, nil
}

// Retain records a new live track whose first observation is in the frame h.
func (w *FrameWindow) Retain(h FrameHandle) error {
	f, err := w.Frame(h)
	if err != nil {
		return err
	}
	f.LiveTracks++
	return nil
}

// Release drops a live track previously retained on frame h.
func (w *FrameWindow) Release(h FrameHandle) error {
	f, err := w.Frame(h)
	if err != nil {
		return err
	}
	if f.LiveTracks == 0 {
		return errors.Errorf("frame of age %d has no live tracks to release", f.Age)
	}
	f.LiveTracks--
	return nil
}

// Span returns the frames from first to last inclusive, oldest first.
func (w *FrameWindow) Span(first, last FrameHandle) ([]*CameraFrame, error) {
	f, err := w.Frame(first)
	if err != nil {
		return nil, errors.Wrap(err, "first frame")
	}
	l, err := w.Frame(last)
	if err != nil {
		return nil, errors.Wrap(err, "last frame")
	}
	if f.Age < l.Age {
		return nil, errors.Errorf("first frame (age %d) is newer than last frame (age %d)", f.Age, l.Age)
	}
	span := make([]*CameraFrame, 0, f.Age-l.Age+1)
	for age := f.Age; age >= l.Age; age-- {
		frame, err := w.FrameAtAge(age)
		if err != nil {
			return nil, err
		}
		span = append(span, frame)
	}
	return span, nil
}

// Reset evicts every frame regardless of live tracks.
func (w *FrameWindow) Reset() {
	for _, slot := range w.order {
		w.slots[slot].live = false
		w.slots[slot].generation++
		w.slots[slot].frame = CameraFrame{}
		w.free = append(w.free, slot)
	}
	w.order = w.order[:0]
}

package models

import (
	"fmt"
)

// Volume represents a 3D scan or label volume
type Volume struct {
	// Data holds the voxel values as a 1D array in row-major (C) order:
	// voxel (i, j, k) lives at (i*Dims[1]+j)*Dims[2]+k
	Data []float64

	// Dims is the extent of each of the three axes in voxels
	Dims [3]int
}

// NewVolume allocates a zero-filled volume with the given extents
func NewVolume(d0, d1, d2 int) (*Volume, error) {
	if d0 <= 0 || d1 <= 0 || d2 <= 0 {
		return nil, &ShapeMismatchError{Op: "new volume", Got: []int{d0, d1, d2}}
	}
	return &Volume{
		Data: make([]float64, d0*d1*d2),
		Dims: [3]int{d0, d1, d2},
	}, nil
}

// FromData wraps data as a volume after checking that its length matches dims.
// The slice is not copied.
func FromData(data []float64, dims [3]int) (*Volume, error) {
	v := &Volume{Data: data, Dims: dims}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate reports a ShapeMismatchError unless the volume is a well-formed
// rank-3 array
func (v *Volume) Validate() error {
	if v == nil {
		return &ShapeMismatchError{Op: "validate", Reason: "nil volume"}
	}
	for _, d := range v.Dims {
		if d <= 0 {
			return &ShapeMismatchError{Op: "validate", Got: v.Dims[:], Reason: "non-positive extent"}
		}
	}
	if len(v.Data) != v.Len() {
		return &ShapeMismatchError{
			Op:     "validate",
			Got:    v.Dims[:],
			Reason: fmt.Sprintf("data holds %d voxels, dims need %d", len(v.Data), v.Len()),
		}
	}
	return nil
}

// Len returns the number of voxels implied by Dims
func (v *Volume) Len() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

// Index returns the offset of voxel (i, j, k) in Data
func (v *Volume) Index(i, j, k int) int {
	return (i*v.Dims[1]+j)*v.Dims[2] + k
}

// At returns the value of voxel (i, j, k)
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.Index(i, j, k)]
}

// Set assigns the value of voxel (i, j, k). It is meant for builders that
// own the volume before handing it out.
func (v *Volume) Set(i, j, k int, value float64) {
	v.Data[v.Index(i, j, k)] = value
}

// Clone returns a deep copy
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &Volume{Data: data, Dims: v.Dims}
}

// SameShape reports whether both volumes have identical extents
func (v *Volume) SameShape(other *Volume) bool {
	return other != nil && v.Dims == other.Dims
}

// SizeBytes is the in-memory size of the voxel data
func (v *Volume) SizeBytes() uint64 {
	return uint64(len(v.Data)) * 8
}

func (v *Volume) String() string {
	return fmt.Sprintf("%dx%dx%d", v.Dims[0], v.Dims[1], v.Dims[2])
}

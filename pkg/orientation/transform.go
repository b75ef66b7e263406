// Package orientation re-expresses a sagittal volume in the coronal and
// transversal planes of the same acquisition.
//
// The remaps are fixed by the scanner's reconstruction convention:
//
//	coronal     = flip axis 1 of permute(sag, 0,2,1)
//	transversal = flip axes 1 and 2 of permute(sag, 1,2,0)
//
// Flips always refer to axis indices after the permutation.
package orientation

import (
	"fmt"

	"mriroimask/internal/models"
)

var (
	coronalOrder     = [3]int{0, 2, 1}
	transversalOrder = [3]int{1, 2, 0}
)

// Permute returns a new volume whose axis n is axis order[n] of v, the same
// convention as numpy.transpose
func Permute(v *models.Volume, order [3]int) (*models.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := checkOrder(order); err != nil {
		return nil, err
	}

	var dims [3]int
	for n, axis := range order {
		dims[n] = v.Dims[axis]
	}
	out := &models.Volume{Data: make([]float64, len(v.Data)), Dims: dims}

	// Strides of the source axes, looked up in output order
	srcStride := [3]int{v.Dims[1] * v.Dims[2], v.Dims[2], 1}
	s0, s1, s2 := srcStride[order[0]], srcStride[order[1]], srcStride[order[2]]

	idx := 0
	for a := 0; a < dims[0]; a++ {
		for b := 0; b < dims[1]; b++ {
			base := a*s0 + b*s1
			for c := 0; c < dims[2]; c++ {
				out.Data[idx] = v.Data[base+c*s2]
				idx++
			}
		}
	}
	return out, nil
}

// Flip returns a new volume mirrored along axis
func Flip(v *models.Volume, axis int) (*models.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if axis < 0 || axis > 2 {
		return nil, &models.ShapeMismatchError{Op: "flip", Got: v.Dims[:], Reason: fmt.Sprintf("axis %d out of range", axis)}
	}

	out := &models.Volume{Data: make([]float64, len(v.Data)), Dims: v.Dims}
	d := v.Dims
	for i := 0; i < d[0]; i++ {
		for j := 0; j < d[1]; j++ {
			for k := 0; k < d[2]; k++ {
				si, sj, sk := i, j, k
				switch axis {
				case 0:
					si = d[0] - 1 - i
				case 1:
					sj = d[1] - 1 - j
				case 2:
					sk = d[2] - 1 - k
				}
				out.Data[v.Index(i, j, k)] = v.Data[v.Index(si, sj, sk)]
			}
		}
	}
	return out, nil
}

// ToCoronal derives the coronal view of a sagittal volume
func ToCoronal(sag *models.Volume) (*models.Volume, error) {
	p, err := Permute(sag, coronalOrder)
	if err != nil {
		return nil, fmt.Errorf("coronal permute: %w", err)
	}
	return Flip(p, 1)
}

// FromCoronal maps a coronal volume produced by ToCoronal back to sagittal
func FromCoronal(cor *models.Volume) (*models.Volume, error) {
	f, err := Flip(cor, 1)
	if err != nil {
		return nil, fmt.Errorf("coronal unflip: %w", err)
	}
	return Permute(f, Inverse(coronalOrder))
}

// ToTransversal derives the transversal view of a sagittal volume
func ToTransversal(sag *models.Volume) (*models.Volume, error) {
	p, err := Permute(sag, transversalOrder)
	if err != nil {
		return nil, fmt.Errorf("transversal permute: %w", err)
	}
	f, err := Flip(p, 1)
	if err != nil {
		return nil, err
	}
	return Flip(f, 2)
}

// FromTransversal maps a transversal volume produced by ToTransversal back
// to sagittal
func FromTransversal(tra *models.Volume) (*models.Volume, error) {
	f, err := Flip(tra, 2)
	if err != nil {
		return nil, fmt.Errorf("transversal unflip: %w", err)
	}
	if f, err = Flip(f, 1); err != nil {
		return nil, err
	}
	return Permute(f, Inverse(transversalOrder))
}

// Transform re-expresses a sagittal volume in the target orientation.
// Sagittal returns a copy.
func Transform(sag *models.Volume, target models.Orientation) (*models.Volume, error) {
	switch target {
	case models.Sagittal:
		if err := sag.Validate(); err != nil {
			return nil, err
		}
		return sag.Clone(), nil
	case models.Coronal:
		return ToCoronal(sag)
	case models.Transversal:
		return ToTransversal(sag)
	default:
		return nil, fmt.Errorf("unknown orientation %v", target)
	}
}

// TargetDims returns the shape a sagittal volume of the given dims takes in
// the target orientation
func TargetDims(sag [3]int, target models.Orientation) [3]int {
	switch target {
	case models.Coronal:
		return [3]int{sag[coronalOrder[0]], sag[coronalOrder[1]], sag[coronalOrder[2]]}
	case models.Transversal:
		return [3]int{sag[transversalOrder[0]], sag[transversalOrder[1]], sag[transversalOrder[2]]}
	default:
		return sag
	}
}

// Inverse returns the permutation that undoes order
func Inverse(order [3]int) [3]int {
	var inv [3]int
	for n, axis := range order {
		inv[axis] = n
	}
	return inv
}

func checkOrder(order [3]int) error {
	var seen [3]bool
	for _, axis := range order {
		if axis < 0 || axis > 2 || seen[axis] {
			return &models.ShapeMismatchError{Op: "permute", Got: order[:], Reason: "not a permutation of (0,1,2)"}
		}
		seen[axis] = true
	}
	return nil
}

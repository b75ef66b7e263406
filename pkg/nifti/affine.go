package nifti

import (
	"math"

	"mriroimask/internal/models"
)

// Affine maps voxel indices (i, j, k, 1) to scanner RAS+ millimetres
type Affine [3][4]float64

// DiagonalAffine scales each axis by its spacing with the origin at voxel 0
func DiagonalAffine(spacing [3]float64) Affine {
	var a Affine
	for n, s := range spacing {
		if s <= 0 {
			s = 1
		}
		a[n][n] = s
	}
	return a
}

// planeAxes holds the RAS+ direction of an image's row, column and slice
// axes for each acquisition plane, following the radiological storage
// convention of the scanner exports
var planeAxes = map[models.Orientation][3][3]float64{
	models.Transversal: {{0, -1, 0}, {-1, 0, 0}, {0, 0, 1}},
	models.Sagittal:    {{0, 0, -1}, {0, -1, 0}, {1, 0, 0}},
	models.Coronal:     {{0, 0, -1}, {-1, 0, 0}, {0, -1, 0}},
}

// PlaneAffine returns the affine of a volume stored as (row, column, slice)
// images acquired in plane, centred on the scanner origin. spacing is in
// the same axis order as dims.
func PlaneAffine(plane models.Orientation, dims [3]int, spacing [3]float64) Affine {
	axes, ok := planeAxes[plane]
	if !ok {
		return DiagonalAffine(spacing)
	}
	var a Affine
	for c := 0; c < 3; c++ {
		s := spacing[c]
		if s <= 0 {
			s = 1
		}
		for r := 0; r < 3; r++ {
			a[r][c] = axes[c][r] * s
		}
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			a[r][3] -= a[r][c] * float64(dims[c]-1) / 2
		}
	}
	return a
}

// Spacing returns the length of each column of the linear part
func (a Affine) Spacing() [3]float64 {
	var s [3]float64
	for c := 0; c < 3; c++ {
		s[c] = math.Sqrt(a[0][c]*a[0][c] + a[1][c]*a[1][c] + a[2][c]*a[2][c])
	}
	return s
}

// quaternion converts the rotation part of a to the qform parameters b, c, d
// and the qfac sign stored in pixdim[0]
func (a Affine) quaternion() (b, c, d, qfac float64) {
	var r [3][3]float64
	spacing := a.Spacing()
	for col := 0; col < 3; col++ {
		s := spacing[col]
		if s == 0 {
			s = 1
		}
		for row := 0; row < 3; row++ {
			r[row][col] = a[row][col] / s
		}
	}

	qfac = 1
	det := r[0][0]*(r[1][1]*r[2][2]-r[1][2]*r[2][1]) -
		r[0][1]*(r[1][0]*r[2][2]-r[1][2]*r[2][0]) +
		r[0][2]*(r[1][0]*r[2][1]-r[1][1]*r[2][0])
	if det < 0 {
		qfac = -1
		for row := 0; row < 3; row++ {
			r[row][2] = -r[row][2]
		}
	}

	var qa float64
	if trace := r[0][0] + r[1][1] + r[2][2] + 1; trace > 0.5 {
		qa = 0.5 * math.Sqrt(trace)
		b = 0.25 * (r[2][1] - r[1][2]) / qa
		c = 0.25 * (r[0][2] - r[2][0]) / qa
		d = 0.25 * (r[1][0] - r[0][1]) / qa
	} else {
		xd := 1 + r[0][0] - (r[1][1] + r[2][2])
		yd := 1 + r[1][1] - (r[0][0] + r[2][2])
		zd := 1 + r[2][2] - (r[0][0] + r[1][1])
		switch {
		case xd > 1:
			b = 0.5 * math.Sqrt(xd)
			c = 0.25 * (r[0][1] + r[1][0]) / b
			d = 0.25 * (r[0][2] + r[2][0]) / b
			qa = 0.25 * (r[2][1] - r[1][2]) / b
		case yd > 1:
			c = 0.5 * math.Sqrt(yd)
			b = 0.25 * (r[0][1] + r[1][0]) / c
			d = 0.25 * (r[1][2] + r[2][1]) / c
			qa = 0.25 * (r[0][2] - r[2][0]) / c
		default:
			d = 0.5 * math.Sqrt(zd)
			b = 0.25 * (r[0][2] + r[2][0]) / d
			c = 0.25 * (r[1][2] + r[2][1]) / d
			qa = 0.25 * (r[1][0] - r[0][1]) / d
		}
		if qa < 0 {
			b, c, d = -b, -c, -d
		}
	}
	return b, c, d, qfac
}

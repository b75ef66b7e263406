// Package overlay burns a label mask into an intensity volume so that the
// selected regions stand out when viewed with the acquisition's own window.
package overlay

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"mriroimask/internal/models"
)

// Offset is the brightness step between consecutive label levels
func Offset(labels models.LabelSet, window models.SeriesWindow) float64 {
	return 0.5 * window.Width / float64(len(labels)+1)
}

// Levels returns the overlay value assigned to each label, in label order.
// Level i is center + offset*(i+2), so every level sits strictly above the
// window center and the last one lands on the top edge of the window.
func Levels(labels models.LabelSet, window models.SeriesWindow) []float64 {
	offset := Offset(labels, window)
	levels := make([]float64, len(labels))
	for i := range labels {
		levels[i] = window.Center + offset*float64(i+2)
	}
	return levels
}

// Composite rescales intensity by (max-center)/max and then overwrites every
// voxel whose mask value is one of labels with that label's level.
//
// The rescale is multiplicative, not a clip, so the scan keeps its relative
// contrast while leaving headroom above the window center for the markers.
func Composite(intensity, mask *models.Volume, labels models.LabelSet, window models.SeriesWindow) (*models.Volume, error) {
	if err := intensity.Validate(); err != nil {
		return nil, err
	}
	if err := mask.Validate(); err != nil {
		return nil, err
	}
	if !intensity.SameShape(mask) {
		return nil, &models.ShapeMismatchError{
			Op:     "composite",
			Want:   intensity.Dims[:],
			Got:    mask.Dims[:],
			Reason: "mask and intensity volumes differ",
		}
	}
	if err := labels.Validate(); err != nil {
		return nil, err
	}
	if !(window.Width > 0) {
		return nil, &models.DegenerateWindowError{Window: window, Reason: "window width must be positive"}
	}

	if floats.HasNaN(intensity.Data) {
		return nil, &models.DegenerateWindowError{
			Window:   window,
			MaxValue: math.NaN(),
			Reason:   "intensity contains NaN",
		}
	}
	maxValue := floats.Max(intensity.Data)
	if maxValue == 0 || math.IsInf(maxValue, 0) {
		return nil, &models.DegenerateWindowError{
			Window:   window,
			MaxValue: maxValue,
			Reason:   "intensity maximum must be finite and non-zero",
		}
	}
	scaledMax := maxValue - window.Center

	out := &models.Volume{
		Data: make([]float64, len(intensity.Data)),
		Dims: intensity.Dims,
	}
	floats.ScaleTo(out.Data, scaledMax/maxValue, intensity.Data)

	levels := Levels(labels, window)
	for i, label := range labels {
		want := float64(label)
		for idx, value := range mask.Data {
			if value == want {
				out.Data[idx] = levels[i]
			}
		}
	}
	return out, nil
}

// Summary describes the value range of an overlay volume
type Summary struct {
	Min  float64
	Max  float64
	Mean float64
}

// Summarize computes the range and mean of v
func Summarize(v *models.Volume) Summary {
	if len(v.Data) == 0 {
		return Summary{}
	}
	return Summary{
		Min:  floats.Min(v.Data),
		Max:  floats.Max(v.Data),
		Mean: stat.Mean(v.Data, nil),
	}
}

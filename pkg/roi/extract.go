// Package roi selects regions of interest from a labeled segmentation volume.
package roi

import (
	"math"

	"mriroimask/internal/models"
)

// Extract returns a volume of the same shape as seg that keeps the voxels
// whose label is in labels and zeroes everything else.
//
// Labels are applied in order and each match overwrites what earlier labels
// wrote, so on a voxel matched by more than one label the last one wins.
// Segmentation values are rounded to the nearest integer before comparison
// since label files are often stored as floating point.
func Extract(seg *models.Volume, labels models.LabelSet) (*models.Volume, error) {
	if err := seg.Validate(); err != nil {
		return nil, err
	}
	if err := labels.Validate(); err != nil {
		return nil, err
	}

	out := &models.Volume{
		Data: make([]float64, len(seg.Data)),
		Dims: seg.Dims,
	}
	for _, label := range labels {
		want := float64(label)
		for idx, value := range seg.Data {
			if math.Round(value) == want {
				out.Data[idx] = want
			}
		}
	}
	return out, nil
}

// Count returns the number of voxels in mask carrying each label, in label
// order
func Count(mask *models.Volume, labels models.LabelSet) []int {
	index := make(map[int]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}
	counts := make([]int, len(labels))
	for _, value := range mask.Data {
		if value == 0 {
			continue
		}
		if i, ok := index[int(math.Round(value))]; ok {
			counts[i]++
		}
	}
	return counts
}

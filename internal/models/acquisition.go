package models

import (
	"fmt"
	"strconv"
	"strings"
)

// LabelSet is an ordered list of segmentation labels. Order decides the
// brightness level each label receives in the overlay.
type LabelSet []int

// Validate rejects empty sets, negative labels and duplicates
func (l LabelSet) Validate() error {
	if len(l) == 0 {
		return &InvalidLabelError{Labels: l, Reason: "no labels to extract"}
	}
	seen := make(map[int]bool, len(l))
	for _, label := range l {
		if label < 0 {
			return &InvalidLabelError{Labels: l, Reason: fmt.Sprintf("label %d is negative", label)}
		}
		if seen[label] {
			return &InvalidLabelError{Labels: l, Reason: fmt.Sprintf("label %d listed twice", label)}
		}
		seen[label] = true
	}
	return nil
}

// ParseLabelSet parses a comma separated list such as "181,185,201,207"
func ParseLabelSet(s string) (LabelSet, error) {
	var labels LabelSet
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid label %q: %w", field, err)
		}
		labels = append(labels, n)
	}
	if err := labels.Validate(); err != nil {
		return nil, err
	}
	return labels, nil
}

func (l LabelSet) String() string {
	parts := make([]string, len(l))
	for i, label := range l {
		parts[i] = strconv.Itoa(label)
	}
	return strings.Join(parts, ",")
}

// SeriesWindow is the display window stored with an acquisition
type SeriesWindow struct {
	Width  float64
	Center float64
}

// Orientation is one of the three canonical acquisition planes
type Orientation int

const (
	Sagittal Orientation = iota
	Coronal
	Transversal
)

// Orientations lists the planes in pipeline order. Sagittal comes first
// because the other two are derived from it.
var Orientations = []Orientation{Sagittal, Coronal, Transversal}

func (o Orientation) String() string {
	switch o {
	case Sagittal:
		return "Sagittal"
	case Coronal:
		return "Coronal"
	case Transversal:
		return "Transversal"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// InputDir is the name of the directory holding the acquisition for this
// plane
func (o Orientation) InputDir() string {
	switch o {
	case Sagittal:
		return "Sag"
	case Coronal:
		return "Cor"
	case Transversal:
		return "Tra"
	default:
		return ""
	}
}

// OutputStem is the base name of the masked record written for this plane
func (o Orientation) OutputStem() string {
	return o.String() + "_masked"
}

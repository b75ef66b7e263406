// Package visualization renders preview images of overlay volumes so a run
// can be checked without a DICOM viewer.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"mriroimask/internal/models"
)

// Viewer extracts display slices from a volume. Voxel values are mapped to
// grey levels through the acquisition's display window, so overlay labels
// (which sit between the window center and its upper edge) show as the
// brightest structures.
type Viewer struct {
	// volume holds the voxel data
	volume *models.Volume

	// low and high bound the displayed value range
	low  float64
	high float64
}

// NewViewer creates a viewer for v displayed through window. A window with
// no width falls back to the volume's own value range.
func NewViewer(v *models.Volume, window models.SeriesWindow) (*Viewer, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	low := window.Center - window.Width/2
	high := window.Center + window.Width/2
	if window.Width <= 0 {
		low, high = floats.Min(v.Data), floats.Max(v.Data)
	}
	return &Viewer{volume: v, low: low, high: high}, nil
}

// Gray maps a voxel value into the 16-bit display range
func (v *Viewer) Gray(value float64) uint16 {
	if v.high <= v.low {
		if value >= v.high {
			return 65535
		}
		return 0
	}
	scaled := (value - v.low) / (v.high - v.low) * 65535
	return uint16(math.Max(0, math.Min(65535, math.Round(scaled))))
}

// axisIndex maps "x", "y" and "z" to volume axes 0, 1 and 2
func axisIndex(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return 0, nil
	case "y":
		return 1, nil
	case "z":
		return 2, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts the 2D plane at position along axis. The image's
// columns run along the lower of the two remaining axes.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	dims := v.volume.Dims
	if position < 0 || position >= dims[a] {
		return nil, fmt.Errorf("position %d outside axis %s of length %d", position, axis, dims[a])
	}

	// remaining axes, columns then rows
	var cols, rows int
	switch a {
	case 0:
		cols, rows = 1, 2
	case 1:
		cols, rows = 0, 2
	default:
		cols, rows = 0, 1
	}

	img := image.NewGray16(image.Rect(0, 0, dims[cols], dims[rows]))
	var idx [3]int
	idx[a] = position
	for r := 0; r < dims[rows]; r++ {
		for c := 0; c < dims[cols]; c++ {
			idx[cols], idx[rows] = c, r
			value := v.volume.At(idx[0], idx[1], idx[2])
			img.SetGray16(c, r, color.Gray16{Y: v.Gray(value)})
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a PNG or JPEG image, chosen by the
// filename's extension
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return png.Encode(file, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	return fmt.Errorf("unsupported image format %q", filepath.Ext(filename))
}

// SaveSliceSequence extracts and saves every slice along axis into
// outputDir, returning the files written
func (v *Viewer) SaveSliceSequence(axis, outputDir, format string) ([]string, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	if format == "jpeg" {
		format = "jpg"
	}
	if format != "png" && format != "jpg" {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for pos := 0; pos < v.volume.Dims[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return written, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", strings.ToLower(axis), pos, format))
		if err := v.SaveSlice(img, filename); err != nil {
			return written, err
		}
		written = append(written, filename)
	}

	return written, nil
}

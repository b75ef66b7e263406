package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"mriroimask/internal/models"
)

// createTestVolume builds a volume whose value is its position along axis 2
func createTestVolume(t *testing.T, d0, d1, d2 int) *models.Volume {
	t.Helper()
	v, err := models.NewVolume(d0, d1, d2)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	for i := 0; i < d0; i++ {
		for j := 0; j < d1; j++ {
			for k := 0; k < d2; k++ {
				v.Set(i, j, k, float64(k))
			}
		}
	}
	return v
}

// TestNewViewer verifies the display range derived from the window
func TestNewViewer(t *testing.T) {
	v := createTestVolume(t, 4, 4, 3)

	viewer, err := NewViewer(v, models.SeriesWindow{Width: 100, Center: 50})
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}
	if viewer.low != 0 || viewer.high != 100 {
		t.Errorf("Expected range [0,100], got [%f,%f]", viewer.low, viewer.high)
	}

	// no window uses the data range
	viewer, _ = NewViewer(v, models.SeriesWindow{})
	if viewer.low != 0 || viewer.high != 2 {
		t.Errorf("Expected range [0,2], got [%f,%f]", viewer.low, viewer.high)
	}

	// the range is taken over every voxel, not just the first
	v.Data[0], v.Data[5] = 1, -7
	viewer, _ = NewViewer(v, models.SeriesWindow{})
	if viewer.low != -7 || viewer.high != 2 {
		t.Errorf("Expected range [-7,2], got [%f,%f]", viewer.low, viewer.high)
	}

	if _, err := NewViewer(&models.Volume{Dims: [3]int{2, 2, 2}}, models.SeriesWindow{}); err == nil {
		t.Error("Expected error for a volume without data")
	}
}

func TestGray(t *testing.T) {
	viewer, _ := NewViewer(createTestVolume(t, 1, 1, 1), models.SeriesWindow{Width: 100, Center: 50})

	tests := []struct {
		value float64
		want  uint16
	}{
		{-10, 0},
		{0, 0},
		{50, 32768},
		{100, 65535},
		{500, 65535},
	}
	for _, tt := range tests {
		if got := viewer.Gray(tt.value); got != tt.want {
			t.Errorf("Gray(%v): expected %d, got %d", tt.value, tt.want, got)
		}
	}
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	d0, d1, d2 := 6, 5, 4
	v := createTestVolume(t, d0, d1, d2)
	viewer, _ := NewViewer(v, models.SeriesWindow{})

	// Each z slice has a single value
	for z := 0; z < d2; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != d0 || bounds.Dy() != d1 {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d", d0, d1, bounds.Dx(), bounds.Dy())
		}
		gray16Img, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}
		want := viewer.Gray(float64(z))
		if got := gray16Img.Gray16At(d0/2, d1/2).Y; got != want {
			t.Errorf("Expected Z slice value %d at center, got %d", want, got)
		}
	}

	imgX, err := viewer.ExtractSlice("x", d0/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != d1 || b.Dy() != d2 {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", d1, d2, b.Dx(), b.Dy())
	}
	// rows of an x slice follow axis 2
	gx := imgX.(*image.Gray16)
	if gx.Gray16At(0, 0).Y != 0 || gx.Gray16At(0, d2-1).Y != 65535 {
		t.Errorf("X slice rows not along axis 2: %d..%d", gx.Gray16At(0, 0).Y, gx.Gray16At(0, d2-1).Y)
	}

	imgY, err := viewer.ExtractSlice("Y", d1/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != d0 || b.Dy() != d2 {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", d0, d2, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", d2); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestSaveSlice verifies that slices can be saved to disk
func TestSaveSlice(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	tempDir := t.TempDir()

	viewer, _ := NewViewer(createTestVolume(t, 5, 5, 2), models.SeriesWindow{})
	img, err := viewer.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}

	for _, name := range []string{"slice.png", "slice.jpg"} {
		filename := filepath.Join(tempDir, name)
		if err := viewer.SaveSlice(img, filename); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Saved file does not exist: %s", filename)
		}
	}

	if err := viewer.SaveSlice(img, filepath.Join(tempDir, "slice.gif")); err == nil {
		t.Error("Expected error for unsupported format, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	outputDir := filepath.Join(t.TempDir(), "slices")

	depth := 3
	viewer, _ := NewViewer(createTestVolume(t, 5, 5, depth), models.SeriesWindow{})

	written, err := viewer.SaveSliceSequence("z", outputDir, "png")
	if err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	if len(written) != depth {
		t.Errorf("Expected %d files, got %d", depth, len(written))
	}
	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.png", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if _, err := viewer.SaveSliceSequence("invalid", outputDir, "png"); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.SaveSliceSequence("z", outputDir, "bmp"); err == nil {
		t.Error("Expected error for invalid format, got nil")
	}
}

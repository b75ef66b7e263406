package xmlrec

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mriroimask/internal/models"
)

const headerFixture = `<?xml version="1.0" encoding="UTF-8"?>
<PRIDE_V5>
  <Series_Info>
    <Attribute Name="Patient Name" Type="String">Phantom</Attribute>
    <Attribute Name="Protocol Name" Type="String">T1_3D_SAG</Attribute>
  </Series_Info>
  <Image_Array>
    <Image_Info>
      <Key>
        <Attribute Name="Slice" Type="Int32">1</Attribute>
        <Attribute Name="Index" Type="Int32">1</Attribute>
      </Key>
      <Attribute Name="Resolution X" Type="UInt16">3</Attribute>
      <Attribute Name="Resolution Y" Type="UInt16">2</Attribute>
      <Attribute Name="Pixel Size" Type="UInt16">8</Attribute>
      <Attribute Name="Rescale Slope" Type="Double">2</Attribute>
      <Attribute Name="Rescale Intercept" Type="Double">-1</Attribute>
      <Attribute Name="Window Center" Type="Double">120</Attribute>
      <Attribute Name="Window Width" Type="Double">240</Attribute>
      <Attribute Name="Pixel Spacing" Type="Double">0.9 0.8</Attribute>
      <Attribute Name="Slice Thickness" Type="Double">1.2</Attribute>
    </Image_Info>
    <Image_Info>
      <Key>
        <Attribute Name="Slice" Type="Int32">2</Attribute>
        <Attribute Name="Index" Type="Int32">0</Attribute>
      </Key>
      <Attribute Name="Resolution X" Type="UInt16">3</Attribute>
      <Attribute Name="Resolution Y" Type="UInt16">2</Attribute>
      <Attribute Name="Pixel Size" Type="UInt16">8</Attribute>
      <Attribute Name="Rescale Slope" Type="Double">2</Attribute>
      <Attribute Name="Rescale Intercept" Type="Double">-1</Attribute>
    </Image_Info>
  </Image_Array>
</PRIDE_V5>
`

// TestReadFixture decodes a hand-written header whose images are stored in
// reverse order in the REC file
func TestReadFixture(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "scan.XML")
	if err := os.WriteFile(xmlPath, []byte(headerFixture), 0644); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	// Index 0 holds the second image, index 1 the first
	raw := []byte{10, 11, 12, 13, 14, 15, 0, 1, 2, 3, 4, 5}
	if err := os.WriteFile(filepath.Join(dir, "scan.REC"), raw, 0644); err != nil {
		t.Fatalf("Failed to write pixels: %v", err)
	}

	rec, err := Read(xmlPath)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if rec.ProtocolName() != "T1_3D_SAG" {
		t.Errorf("Expected protocol T1_3D_SAG, got %q", rec.ProtocolName())
	}
	if rec.Pixels.Dims != [3]int{3, 2, 2} {
		t.Fatalf("Expected dims [3 2 2], got %v", rec.Pixels.Dims)
	}
	// first image, pixel (x=1, y=1) is stored byte 4 of frame 1 -> 4*2-1
	if got := rec.Pixels.At(1, 1, 0); got != 7 {
		t.Errorf("Expected 7, got %v", got)
	}
	// second image, pixel (x=0, y=0) is stored byte 10 of frame 0 -> 10*2-1
	if got := rec.Pixels.At(0, 0, 1); got != 19 {
		t.Errorf("Expected 19, got %v", got)
	}

	window, err := rec.Window()
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	if window.Center != 120 || window.Width != 240 {
		t.Errorf("Unexpected window %+v", window)
	}

	size := rec.VoxelSize()
	if size != [3]float64{0.9, 0.8, 1.2} {
		t.Errorf("Unexpected voxel size %v", size)
	}
}

// TestWriteReadRoundTrip verifies that pixels survive a write and read, up
// to quantization
func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "out", "Sagittal_masked.xml")

	rec := NewRecord("T1_3D_SAG", [3]int{4, 3, 2}, models.SeriesWindow{Width: 100, Center: 50})
	pixels, _ := models.NewVolume(4, 3, 2)
	for i := range pixels.Data {
		pixels.Data[i] = float64(i*10) + 0.4
	}
	pixels.Data[0] = -20     // clamped to 0
	pixels.Data[1] = 1 << 20 // clamped to 65535

	if err := Write(xmlPath, rec, pixels); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(RECPath(xmlPath)); err != nil {
		t.Fatalf("Expected REC file next to header: %v", err)
	}

	back, err := Read(xmlPath)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if back.Pixels.Data[0] != 0 {
		t.Errorf("Expected negative value clamped to 0, got %v", back.Pixels.Data[0])
	}
	if back.Pixels.Data[1] != 65535 {
		t.Errorf("Expected large value clamped to 65535, got %v", back.Pixels.Data[1])
	}
	for i := 2; i < len(pixels.Data); i++ {
		if want := float64(i * 10); back.Pixels.Data[i] != want {
			t.Errorf("Voxel %d: expected %v, got %v", i, want, back.Pixels.Data[i])
		}
	}
	if len(back.Images) != 2 || back.ProtocolName() != "T1_3D_SAG" {
		t.Errorf("Header not preserved: %+v", back.General)
	}
}

func TestWriteRejectsWrongShape(t *testing.T) {
	rec := NewRecord("p", [3]int{4, 3, 2}, models.SeriesWindow{Width: 1, Center: 1})
	pixels, _ := models.NewVolume(3, 4, 2)

	err := Write(filepath.Join(t.TempDir(), "x.xml"), rec, pixels)
	var shapeErr *models.ShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Errorf("Expected ShapeMismatchError, got %v", err)
	}
}

func TestWithProtocolSuffix(t *testing.T) {
	rec := NewRecord("T1_3D_COR", [3]int{2, 2, 1}, models.SeriesWindow{Width: 1, Center: 1})

	out := rec.WithProtocolSuffix("_Seg")
	if out.ProtocolName() != "T1_3D_COR_Seg" {
		t.Errorf("Expected T1_3D_COR_Seg, got %q", out.ProtocolName())
	}
	if rec.ProtocolName() != "T1_3D_COR" {
		t.Errorf("Original record modified: %q", rec.ProtocolName())
	}
	out.Images[0].Attributes.Set(AttrWindowWidth, "7")
	if w, _ := rec.Images[0].Attributes.Get(AttrWindowWidth); w == "7" {
		t.Error("Image attributes shared between copies")
	}
}

func TestRECPath(t *testing.T) {
	cases := map[string]string{
		"/a/scan.XML": "/a/scan.REC",
		"/a/scan.xml": "/a/scan.rec",
		"scan":        "scan.rec",
	}
	for in, want := range cases {
		if got := RECPath(in); got != want {
			t.Errorf("RECPath(%q) = %q, expected %q", in, got, want)
		}
	}
}

func TestWindowMissing(t *testing.T) {
	rec := &Record{Images: []ImageInfo{{}}}
	if _, err := rec.Window(); err == nil || !strings.Contains(err.Error(), AttrWindowWidth) {
		t.Errorf("Expected missing window error, got %v", err)
	}
}

func TestGridRejectsMixedResolution(t *testing.T) {
	rec := NewRecord("p", [3]int{2, 2, 2}, models.SeriesWindow{Width: 1, Center: 1})
	rec.Images[1].Attributes.Set(AttrResolutionX, "3")

	_, err := rec.Grid()
	var shapeErr *models.ShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Errorf("Expected ShapeMismatchError, got %v", err)
	}
}

func TestSliceOrientation(t *testing.T) {
	cases := map[string]models.Orientation{
		"Sagittal":    models.Sagittal,
		"2":           models.Sagittal,
		"Transversal": models.Transversal,
		"1":           models.Transversal,
		"coronal":     models.Coronal,
		"3":           models.Coronal,
	}
	for value, want := range cases {
		rec := NewRecord("p", [3]int{2, 2, 1}, models.SeriesWindow{Width: 1, Center: 1})
		rec.Images[0].Attributes.Set(AttrSliceOrientation, value)
		got, ok := rec.SliceOrientation()
		if !ok || got != want {
			t.Errorf("SliceOrientation(%q) = %v, %v, expected %v", value, got, ok, want)
		}
	}

	rec := NewRecord("p", [3]int{2, 2, 1}, models.SeriesWindow{Width: 1, Center: 1})
	if _, ok := rec.SliceOrientation(); ok {
		t.Error("Expected no orientation without the attribute")
	}
	rec.Images[0].Attributes.Set(AttrSliceOrientation, "oblique")
	if _, ok := rec.SliceOrientation(); ok {
		t.Error("Expected unknown orientation to be rejected")
	}
}

func TestAngulated(t *testing.T) {
	rec := NewRecord("p", [3]int{2, 2, 1}, models.SeriesWindow{Width: 1, Center: 1})
	if rec.Angulated() {
		t.Error("Record without angulation reported as angulated")
	}
	rec.Images[0].Attributes.Set(AttrImageAngulation, "0 0 0")
	if rec.Angulated() {
		t.Error("Zero angulation reported as angulated")
	}
	rec.Images[0].Attributes.Set(AttrImageAngulation, "0 12.5 0")
	if !rec.Angulated() {
		t.Error("Expected angulated record")
	}
}

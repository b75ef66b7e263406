// Package xmlrec reads and writes scanner exports in the XML/REC format: an
// XML header describing the series and every image, plus a raw .REC file
// holding the pixels of all images back to back.
package xmlrec

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"mriroimask/internal/models"
)

// Attribute names used by the codec
const (
	AttrProtocolName     = "Protocol Name"
	AttrResolutionX      = "Resolution X"
	AttrResolutionY      = "Resolution Y"
	AttrPixelSize        = "Pixel Size"
	AttrRescaleSlope     = "Rescale Slope"
	AttrRescaleIntercept = "Rescale Intercept"
	AttrWindowCenter     = "Window Center"
	AttrWindowWidth      = "Window Width"
	AttrPixelSpacing     = "Pixel Spacing"
	AttrSliceThickness   = "Slice Thickness"
	AttrIndex            = "Index"
	AttrSliceOrientation = "Slice Orientation"
	AttrImageAngulation  = "Image Angulation"
)

// Attribute is one named, typed header value
type Attribute struct {
	Name  string `xml:"Name,attr"`
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

// Attributes is an ordered attribute list. Order is preserved on write.
type Attributes []Attribute

// Get returns the raw value of the named attribute
func (a Attributes) Get(name string) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return strings.TrimSpace(attr.Value), true
		}
	}
	return "", false
}

// Set replaces the value of the named attribute, appending it as a String
// attribute when absent
func (a *Attributes) Set(name, value string) {
	for i := range *a {
		if (*a)[i].Name == name {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Name: name, Type: "String", Value: value})
}

// Float parses the named attribute, returning def when it is absent
func (a Attributes) Float(name string, def float64) (float64, error) {
	s, ok := a.Get(name)
	if !ok || s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %w", name, err)
	}
	return f, nil
}

// Int parses the named attribute, returning def when it is absent
func (a Attributes) Int(name string, def int) (int, error) {
	s, ok := a.Get(name)
	if !ok || s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %w", name, err)
	}
	return n, nil
}

// Floats parses a whitespace separated list such as "0.9 0.9"
func (a Attributes) Floats(name string) ([]float64, error) {
	s, ok := a.Get(name)
	if !ok {
		return nil, nil
	}
	var out []float64
	for _, field := range strings.Fields(s) {
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (a Attributes) clone() Attributes {
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

// ImageInfo describes one stored image
type ImageInfo struct {
	Key        Attributes `xml:"Key>Attribute"`
	Attributes Attributes `xml:"Attribute"`
}

// Lookup searches the image attributes and then its key
func (im ImageInfo) Lookup() Attributes {
	all := make(Attributes, 0, len(im.Attributes)+len(im.Key))
	all = append(all, im.Attributes...)
	return append(all, im.Key...)
}

type document struct {
	XMLName    xml.Name    `xml:"PRIDE_V5"`
	SeriesInfo Attributes  `xml:"Series_Info>Attribute"`
	Images     []ImageInfo `xml:"Image_Array>Image_Info"`
}

// Record is a decoded XML/REC export
type Record struct {
	// General holds the series-level attributes, including the protocol name
	General Attributes

	// Images holds the per-image attributes in header order
	Images []ImageInfo

	// Pixels is the decoded pixel array with shape (X, Y, image). It is nil
	// when only the header was read.
	Pixels *models.Volume
}

// ProtocolName returns the series protocol name
func (r *Record) ProtocolName() string {
	name, _ := r.General.Get(AttrProtocolName)
	return name
}

// WithProtocolSuffix returns a copy of the header with suffix appended to the
// protocol name. Pixels are not carried over.
func (r *Record) WithProtocolSuffix(suffix string) *Record {
	out := &Record{
		General: r.General.clone(),
		Images:  make([]ImageInfo, len(r.Images)),
	}
	for i, im := range r.Images {
		out.Images[i] = ImageInfo{Key: im.Key.clone(), Attributes: im.Attributes.clone()}
	}
	out.General.Set(AttrProtocolName, r.ProtocolName()+suffix)
	return out
}

// Window returns the display window stored with the first image
func (r *Record) Window() (models.SeriesWindow, error) {
	if len(r.Images) == 0 {
		return models.SeriesWindow{}, fmt.Errorf("record has no images")
	}
	attrs := r.Images[0].Lookup()
	if _, ok := attrs.Get(AttrWindowWidth); !ok {
		return models.SeriesWindow{}, fmt.Errorf("first image has no %q", AttrWindowWidth)
	}
	width, err := attrs.Float(AttrWindowWidth, 0)
	if err != nil {
		return models.SeriesWindow{}, err
	}
	center, err := attrs.Float(AttrWindowCenter, 0)
	if err != nil {
		return models.SeriesWindow{}, err
	}
	return models.SeriesWindow{Width: width, Center: center}, nil
}

// Grid returns the (X, Y, image count) shape of the stored pixels. All
// images must share one resolution.
func (r *Record) Grid() ([3]int, error) {
	if len(r.Images) == 0 {
		return [3]int{}, &models.ShapeMismatchError{Op: "xmlrec grid", Reason: "record has no images"}
	}
	var resX, resY int
	for i, im := range r.Images {
		attrs := im.Lookup()
		x, err := attrs.Int(AttrResolutionX, 0)
		if err != nil {
			return [3]int{}, err
		}
		y, err := attrs.Int(AttrResolutionY, 0)
		if err != nil {
			return [3]int{}, err
		}
		if i == 0 {
			resX, resY = x, y
			continue
		}
		if x != resX || y != resY {
			return [3]int{}, &models.ShapeMismatchError{
				Op:     "xmlrec grid",
				Want:   []int{resX, resY},
				Got:    []int{x, y},
				Reason: fmt.Sprintf("image %d resolution differs", i),
			}
		}
	}
	if resX <= 0 || resY <= 0 {
		return [3]int{}, &models.ShapeMismatchError{Op: "xmlrec grid", Got: []int{resX, resY}, Reason: "missing resolution"}
	}
	return [3]int{resX, resY, len(r.Images)}, nil
}

// VoxelSize returns the voxel spacing in mm along X, Y and the slice axis,
// defaulting each missing value to 1
func (r *Record) VoxelSize() [3]float64 {
	size := [3]float64{1, 1, 1}
	if len(r.Images) == 0 {
		return size
	}
	attrs := r.Images[0].Lookup()
	if spacing, err := attrs.Floats(AttrPixelSpacing); err == nil && len(spacing) >= 2 {
		size[0], size[1] = spacing[0], spacing[1]
	}
	if thickness, err := attrs.Float(AttrSliceThickness, 1); err == nil && thickness > 0 {
		size[2] = thickness
	}
	return size
}

// SliceOrientation returns the acquisition plane stored with the first
// image. Both the plane names and the numeric codes 1 (transversal),
// 2 (sagittal) and 3 (coronal) are accepted.
func (r *Record) SliceOrientation() (models.Orientation, bool) {
	if len(r.Images) == 0 {
		return 0, false
	}
	value, ok := r.Images[0].Lookup().Get(AttrSliceOrientation)
	if !ok {
		return 0, false
	}
	switch strings.ToLower(value) {
	case "transversal", "transverse", "axial", "tra", "1":
		return models.Transversal, true
	case "sagittal", "sag", "2":
		return models.Sagittal, true
	case "coronal", "cor", "3":
		return models.Coronal, true
	default:
		return 0, false
	}
}

// Angulated reports whether the first image carries a non-zero angulation
func (r *Record) Angulated() bool {
	if len(r.Images) == 0 {
		return false
	}
	angles, err := r.Images[0].Lookup().Floats(AttrImageAngulation)
	if err != nil {
		return false
	}
	for _, a := range angles {
		if a != 0 {
			return true
		}
	}
	return false
}

// NewRecord builds a header for dims[2] images of dims[0] x dims[1] 16-bit
// pixels sharing one display window
func NewRecord(protocol string, dims [3]int, window models.SeriesWindow) *Record {
	rec := &Record{
		General: Attributes{{Name: AttrProtocolName, Type: "String", Value: protocol}},
		Images:  make([]ImageInfo, dims[2]),
	}
	for i := range rec.Images {
		rec.Images[i] = ImageInfo{
			Key: Attributes{
				{Name: "Slice", Type: "Int32", Value: strconv.Itoa(i + 1)},
				{Name: AttrIndex, Type: "Int32", Value: strconv.Itoa(i)},
			},
			Attributes: Attributes{
				{Name: AttrResolutionX, Type: "UInt16", Value: strconv.Itoa(dims[0])},
				{Name: AttrResolutionY, Type: "UInt16", Value: strconv.Itoa(dims[1])},
				{Name: AttrPixelSize, Type: "UInt16", Value: "16"},
				{Name: AttrRescaleSlope, Type: "Double", Value: "1"},
				{Name: AttrRescaleIntercept, Type: "Double", Value: "0"},
				{Name: AttrWindowCenter, Type: "Double", Value: strconv.FormatFloat(window.Center, 'g', -1, 64)},
				{Name: AttrWindowWidth, Type: "Double", Value: strconv.FormatFloat(window.Width, 'g', -1, 64)},
			},
		}
	}
	return rec
}

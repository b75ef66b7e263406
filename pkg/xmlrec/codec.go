package xmlrec

import (
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"mriroimask/internal/models"
)

// Codec reads and writes XML/REC records on the local filesystem
type Codec struct{}

// Decode reads the header and pixels of the record at xmlPath
func (Codec) Decode(xmlPath string) (*Record, error) {
	return Read(xmlPath)
}

// DecodeHeader reads only the header of the record at xmlPath
func (Codec) DecodeHeader(xmlPath string) (*Record, error) {
	return ReadHeader(xmlPath)
}

// Encode writes rec's header and pixels as a record at xmlPath
func (Codec) Encode(xmlPath string, rec *Record, pixels *models.Volume) error {
	return Write(xmlPath, rec, pixels)
}

// RECPath returns the pixel file that belongs to an XML header, matching the
// header extension's case
func RECPath(xmlPath string) string {
	ext := filepath.Ext(xmlPath)
	rec := ".rec"
	if ext != "" && ext == strings.ToUpper(ext) {
		rec = ".REC"
	}
	return strings.TrimSuffix(xmlPath, ext) + rec
}

// ReadHeader parses the XML header at xmlPath
func ReadHeader(xmlPath string) (*Record, error) {
	data, err := os.ReadFile(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing header %s: %w", xmlPath, err)
	}
	return &Record{General: doc.SeriesInfo, Images: doc.Images}, nil
}

// Read parses the header at xmlPath and decodes the pixels of its REC file.
// Stored values are mapped through each image's rescale slope and intercept.
func Read(xmlPath string) (*Record, error) {
	rec, err := ReadHeader(xmlPath)
	if err != nil {
		return nil, err
	}
	layouts, grid, err := rec.layouts()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(RECPath(xmlPath))
	if err != nil {
		return nil, fmt.Errorf("error reading pixel data: %w", err)
	}

	pixels, err := models.NewVolume(grid[0], grid[1], grid[2])
	if err != nil {
		return nil, err
	}
	for z, l := range layouts {
		end := l.offset + l.frameBytes()
		if end > len(raw) {
			return nil, fmt.Errorf("pixel file %s too short: image %d needs bytes up to %d, have %d",
				RECPath(xmlPath), z, end, len(raw))
		}
		frame := raw[l.offset:end]
		for y := 0; y < grid[1]; y++ {
			for x := 0; x < grid[0]; x++ {
				p := y*grid[0] + x
				var stored float64
				if l.bytesPerPixel == 1 {
					stored = float64(frame[p])
				} else {
					stored = float64(binary.LittleEndian.Uint16(frame[2*p:]))
				}
				pixels.Set(x, y, z, stored*l.slope+l.intercept)
			}
		}
	}
	rec.Pixels = pixels
	return rec, nil
}

// Write stores rec's header at xmlPath and pixels in the matching REC file.
// pixels must have the record's (X, Y, image) shape; values are quantized
// with each image's rescale parameters and clamped to the stored range.
func Write(xmlPath string, rec *Record, pixels *models.Volume) error {
	if err := pixels.Validate(); err != nil {
		return err
	}
	layouts, grid, err := rec.layouts()
	if err != nil {
		return err
	}
	if pixels.Dims != grid {
		return &models.ShapeMismatchError{
			Op:     "xmlrec write",
			Want:   grid[:],
			Got:    pixels.Dims[:],
			Reason: "pixel array does not fit the record's image grid",
		}
	}

	size := 0
	for _, l := range layouts {
		if end := l.offset + l.frameBytes(); end > size {
			size = end
		}
	}
	raw := make([]byte, size)
	for z, l := range layouts {
		frame := raw[l.offset : l.offset+l.frameBytes()]
		for y := 0; y < grid[1]; y++ {
			for x := 0; x < grid[0]; x++ {
				p := y*grid[0] + x
				stored := l.quantize(pixels.At(x, y, z))
				if l.bytesPerPixel == 1 {
					frame[p] = uint8(stored)
				} else {
					binary.LittleEndian.PutUint16(frame[2*p:], uint16(stored))
				}
			}
		}
	}

	doc := document{SeriesInfo: rec.General, Images: rec.Images}
	header, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(xmlPath), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	if err := os.WriteFile(xmlPath, append([]byte(xml.Header), header...), 0644); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if err := os.WriteFile(RECPath(xmlPath), raw, 0644); err != nil {
		return fmt.Errorf("error writing pixel data: %w", err)
	}
	return nil
}

// imageLayout locates one image inside the REC file
type imageLayout struct {
	offset        int
	pixels        int
	bytesPerPixel int
	slope         float64
	intercept     float64
}

func (l imageLayout) frameBytes() int {
	return l.pixels * l.bytesPerPixel
}

func (l imageLayout) quantize(value float64) float64 {
	stored := math.Round((value - l.intercept) / l.slope)
	maxStored := float64(uint64(1)<<(8*l.bytesPerPixel) - 1)
	if stored < 0 || math.IsNaN(stored) {
		return 0
	}
	if stored > maxStored {
		return maxStored
	}
	return stored
}

// layouts resolves where each image lives in the REC file. Images are stored
// in header order unless they carry an explicit Index.
func (r *Record) layouts() ([]imageLayout, [3]int, error) {
	grid, err := r.Grid()
	if err != nil {
		return nil, grid, err
	}
	n := grid[0] * grid[1]
	layouts := make([]imageLayout, len(r.Images))
	for i, im := range r.Images {
		attrs := im.Lookup()
		bits, err := attrs.Int(AttrPixelSize, 16)
		if err != nil {
			return nil, grid, err
		}
		if bits != 8 && bits != 16 {
			return nil, grid, fmt.Errorf("image %d: unsupported pixel size %d", i, bits)
		}
		slope, err := attrs.Float(AttrRescaleSlope, 1)
		if err != nil {
			return nil, grid, err
		}
		if slope == 0 {
			slope = 1
		}
		intercept, err := attrs.Float(AttrRescaleIntercept, 0)
		if err != nil {
			return nil, grid, err
		}
		index, err := attrs.Int(AttrIndex, i)
		if err != nil {
			return nil, grid, err
		}
		if index < 0 || index >= len(r.Images) {
			return nil, grid, fmt.Errorf("image %d: index %d out of range", i, index)
		}
		bpp := bits / 8
		layouts[i] = imageLayout{
			offset:        index * n * bpp,
			pixels:        n,
			bytesPerPixel: bpp,
			slope:         slope,
			intercept:     intercept,
		}
	}
	return layouts, grid, nil
}

package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"mriroimask/internal/models"
)

const (
	headerSize   = 348
	voxelOffset  = 352
	dtFloat32    = 16
	unitsMM      = 2
	xformScanner = 1
)

// header is the on-disk NIfTI-1 header, laid out field for field so that
// binary.Write produces exactly headerSize bytes
type header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

func newHeader(dims [3]int, affine Affine, description string) (*header, error) {
	h := &header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  dtFloat32,
		Bitpix:    32,
		VoxOffset: voxelOffset,
		SclSlope:  1,
		XyztUnits: unitsMM,
		QformCode: xformScanner,
		SformCode: xformScanner,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	h.Dim[0] = 3
	for n, d := range dims {
		if d <= 0 || d > math.MaxInt16 {
			return nil, &models.ShapeMismatchError{Op: "nifti write", Got: dims[:], Reason: "extent out of NIfTI range"}
		}
		h.Dim[n+1] = int16(d)
	}
	for n := 4; n < 8; n++ {
		h.Dim[n] = 1
	}
	for n, s := range affine.Spacing() {
		if s <= 0 {
			return nil, fmt.Errorf("affine axis %d is degenerate", n)
		}
		h.Pixdim[n+1] = float32(s)
	}
	b, c, d, qfac := affine.quaternion()
	h.Pixdim[0] = float32(qfac)
	h.QuaternB, h.QuaternC, h.QuaternD = float32(b), float32(c), float32(d)
	h.QoffsetX, h.QoffsetY, h.QoffsetZ = float32(affine[0][3]), float32(affine[1][3]), float32(affine[2][3])
	rows := [3]*[4]float32{&h.SrowX, &h.SrowY, &h.SrowZ}
	for r, row := range rows {
		for col := range row {
			row[col] = float32(affine[r][col])
		}
	}
	copy(h.Descrip[:], description)
	return h, nil
}

// Write stores v as a float32 NIfTI-1 file whose i, j, k axes are v's axes
// 0, 1, 2, scaled by voxelSize. A filename ending in .gz is gzip compressed.
func Write(filename string, v *models.Volume, voxelSize [3]float64, description string) error {
	return WriteAffine(filename, v, DiagonalAffine(voxelSize), description)
}

// WriteAffine is Write with an explicit voxel to scanner mapping, stored as
// both the qform and the sform
func WriteAffine(filename string, v *models.Volume, affine Affine, description string) (err error) {
	if err := v.Validate(); err != nil {
		return err
	}
	h, err := newHeader(v.Dims, affine, description)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", filename, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var w io.Writer = f
	if strings.HasSuffix(filename, ".gz") {
		gz := gzip.NewWriter(f)
		defer func() {
			if cerr := gz.Close(); err == nil && cerr != nil {
				err = cerr
			}
		}()
		w = gz
	}
	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); err == nil && ferr != nil {
			err = ferr
		}
	}()

	return encode(bw, h, v)
}

// encode writes the header, the empty extension block and the voxels in
// NIfTI order (i fastest)
func encode(w io.Writer, h *header, v *models.Volume) error {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if _, err := w.Write(make([]byte, voxelOffset-headerSize)); err != nil {
		return fmt.Errorf("error writing extension: %w", err)
	}
	buf := make([]byte, 4*v.Dims[0])
	for k := 0; k < v.Dims[2]; k++ {
		for j := 0; j < v.Dims[1]; j++ {
			for i := 0; i < v.Dims[0]; i++ {
				binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v.At(i, j, k))))
			}
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("error writing voxels: %w", err)
			}
		}
	}
	return nil
}

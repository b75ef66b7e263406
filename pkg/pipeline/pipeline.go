// Package pipeline turns three XML/REC acquisitions of one subject into
// masked copies in which the selected brain structures are burned in as
// bright overlays.
//
// The run follows these steps:
//  1. Discover the Sag, Cor and Tra acquisitions
//  2. Decode the sagittal record and convert it to NIfTI (memoized)
//  3. Segment the NIfTI volume with the external segmenter
//  4. Load the labeled volume back into the record's axis order
//  5. Extract the selected labels and composite them over the intensities
//  6. Write the sagittal masked record
//  7. Remap the overlay to coronal and transversal and write those records
//  8. Optionally render preview images
package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mriroimask/internal/models"
	"mriroimask/pkg/cache"
	"mriroimask/pkg/logging"
	"mriroimask/pkg/nifti"
	"mriroimask/pkg/orientation"
	"mriroimask/pkg/overlay"
	"mriroimask/pkg/roi"
	"mriroimask/pkg/segmentation"
	"mriroimask/pkg/visualization"
	"mriroimask/pkg/xmlrec"
)

// niftiAxes reorders between the record's (X, Y, slice) pixel layout and
// the (Y, X, slice) layout of the NIfTI volumes the segmenter sees. It is
// its own inverse.
var niftiAxes = [3]int{1, 0, 2}

// Codec decodes and encodes XML/REC records
type Codec interface {
	Decode(xmlPath string) (*xmlrec.Record, error)
	DecodeHeader(xmlPath string) (*xmlrec.Record, error)
	Encode(xmlPath string, rec *xmlrec.Record, pixels *models.Volume) error
}

// Params holds the parameters of one run
type Params struct {
	// InputDir holds the Sag, Cor and Tra acquisition directories
	InputDir string

	// OutputDir receives the intermediates and masked directories
	OutputDir string

	// Labels are overlaid in order; later labels are brighter
	Labels models.LabelSet

	// ProtocolSuffix is appended to the protocol name of each written record
	ProtocolSuffix string

	// IntermediatesDir and MaskedDir are resolved against OutputDir unless
	// absolute
	IntermediatesDir string
	MaskedDir        string

	// Previews enables preview images in PreviewFormat ("png" or "jpg")
	Previews      bool
	PreviewFormat string

	// UseCache reuses the sagittal conversion when its files are unchanged
	UseCache bool

	// Codec reads and writes records; xmlrec.Codec when nil
	Codec Codec

	// Segmenter labels the intermediate volume; the docker segmenter when nil
	Segmenter segmentation.Segmenter

	// LoadLabels reads the segmenter's output; nifti.Load when nil
	LoadLabels func(path string) (*models.Volume, error)
}

// Pipeline runs the masking process for one subject
type Pipeline struct {
	params Params
}

// NewPipeline creates a pipeline, filling unset collaborators and
// directories with their defaults
func NewPipeline(params Params) *Pipeline {
	if params.Codec == nil {
		params.Codec = xmlrec.Codec{}
	}
	if params.Segmenter == nil {
		params.Segmenter = segmentation.NewDockerSegmenter()
	}
	if params.LoadLabels == nil {
		params.LoadLabels = nifti.Load
	}
	if params.IntermediatesDir == "" {
		params.IntermediatesDir = "intermediates"
	}
	if params.MaskedDir == "" {
		params.MaskedDir = "masked"
	}
	if params.PreviewFormat == "" {
		params.PreviewFormat = "png"
	}
	return &Pipeline{params: params}
}

func (p *Pipeline) dir(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.params.OutputDir, name)
}

// converted is the sagittal acquisition ready for segmentation
type converted struct {
	record       *xmlrec.Record
	intensity    *models.Volume
	intermediate string
	cacheHit     bool
}

// Process runs the complete pipeline
func (p *Pipeline) Process(ctx context.Context) (*Report, error) {
	begin := time.Now()
	report := &Report{}

	if err := p.params.Labels.Validate(); err != nil {
		return nil, err
	}

	// Step 1: Discover acquisitions
	fmt.Println("Step 1: Discovering acquisitions...")
	start := time.Now()
	acquisitions, err := Discover(p.params.InputDir)
	if err != nil {
		return nil, err
	}
	for _, o := range models.Orientations {
		logging.Debugf("%s: %s", o, acquisitions[o].XMLPath)
	}
	report.track("discover", start)

	// Step 2: Decode and convert the sagittal acquisition
	fmt.Println("Step 2: Converting sagittal record to NIfTI...")
	start = time.Now()
	sag, err := p.convert(acquisitions[models.Sagittal])
	if err != nil {
		return nil, fmt.Errorf("failed to convert sagittal record: %w", err)
	}
	report.Intermediate = sag.intermediate
	report.CacheHit = sag.cacheHit
	report.track("convert", start)

	window, err := sag.record.Window()
	if err != nil {
		return nil, fmt.Errorf("failed to read sagittal window: %w", err)
	}
	report.Window = window

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: Segment
	fmt.Println("Step 3: Segmenting...")
	start = time.Now()
	labelPath, err := p.params.Segmenter.Segment(ctx, sag.intermediate)
	if err != nil {
		return nil, fmt.Errorf("failed to segment %s: %w", sag.intermediate, err)
	}
	report.Segmentation = labelPath
	report.track("segment", start)

	// Step 4: Load labels in record axis order
	fmt.Println("Step 4: Loading labeled volume...")
	start = time.Now()
	labeled, err := p.params.LoadLabels(labelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load labeled volume: %w", err)
	}
	labeled, err = orientation.Permute(labeled, niftiAxes)
	if err != nil {
		return nil, err
	}
	checkSpacing(sag.intermediate, labelPath)
	report.track("load labels", start)

	// Step 5: Extract structures and composite the overlay
	fmt.Println("Step 5: Compositing overlay...")
	start = time.Now()
	mask, err := roi.Extract(labeled, p.params.Labels)
	if err != nil {
		return nil, err
	}
	masked, err := overlay.Composite(sag.intensity, mask, p.params.Labels, window)
	if err != nil {
		return nil, err
	}
	counts := roi.Count(mask, p.params.Labels)
	levels := overlay.Levels(p.params.Labels, window)
	for i, label := range p.params.Labels {
		report.Labels = append(report.Labels, LabelStat{Label: label, Level: levels[i], Voxels: counts[i]})
		if counts[i] == 0 {
			logging.Warningf("Label %d not present in segmentation", label)
		}
	}
	report.Overlay = overlay.Summarize(masked)
	report.track("composite", start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 6 and 7: Emit every orientation from the sagittal overlay
	fmt.Println("Step 6: Writing sagittal masked record...")
	start = time.Now()
	out, err := p.emit(models.Sagittal, sag.record, masked)
	if err != nil {
		return nil, err
	}
	report.Outputs = append(report.Outputs, out)

	fmt.Println("Step 7: Writing coronal and transversal masked records...")
	for _, o := range models.Orientations[1:] {
		header, err := p.params.Codec.DecodeHeader(acquisitions[o].XMLPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s header: %w", o, err)
		}
		remapped, err := orientation.Transform(masked, o)
		if err != nil {
			return nil, err
		}
		out, err := p.emit(o, header, remapped)
		if err != nil {
			return nil, err
		}
		report.Outputs = append(report.Outputs, out)
	}
	report.track("emit", start)

	// Step 8: Previews
	if p.params.Previews {
		fmt.Println("Step 8: Rendering previews...")
		start = time.Now()
		for i := range report.Outputs {
			if err := p.preview(&report.Outputs[i], window); err != nil {
				logging.Warningf("Failed to render %s previews: %v", report.Outputs[i].Orientation, err)
			}
		}
		report.track("previews", start)
	}

	report.Total = time.Since(begin)
	return report, nil
}

// convert decodes the sagittal record and writes the NIfTI intermediate the
// segmenter reads. Results are memoized by the fingerprint of the record's
// files.
func (p *Pipeline) convert(acq Acquisition) (*converted, error) {
	key, err := cache.Fingerprint(acq.XMLPath, acq.RECPath)
	if err != nil {
		return nil, err
	}

	// Each fingerprint gets its own directory so segmenter outputs of
	// different scans never mix
	workDir := filepath.Join(p.dir(p.params.IntermediatesDir), key[:16])
	stem := strings.TrimSuffix(filepath.Base(acq.XMLPath), filepath.Ext(acq.XMLPath))
	intermediate := filepath.Join(workDir, stem+".nii")

	var store *cache.Store
	if p.params.UseCache {
		store, err = cache.Open(filepath.Join(p.dir(p.params.IntermediatesDir), "cache"))
		if err != nil {
			return nil, err
		}
		entry, vol, ok, err := store.Get(key)
		if err != nil {
			logging.Warningf("Evicting unreadable cache entry %s: %v", key, err)
			if err := store.Remove(key); err != nil {
				logging.Warningf("Failed to evict cache entry %s: %v", key, err)
			}
		}
		if ok {
			rec, err := p.params.Codec.DecodeHeader(acq.XMLPath)
			if err != nil {
				return nil, err
			}
			rec.Pixels = vol
			logging.Infof("Reusing conversion of %s from %s", filepath.Base(acq.XMLPath), entry.CreatedAt.Format(time.RFC3339))
			return &converted{record: rec, intensity: vol, intermediate: entry.Artifact, cacheHit: true}, nil
		}
	}

	rec, err := p.params.Codec.Decode(acq.XMLPath)
	if err != nil {
		return nil, err
	}
	if err := rec.Pixels.Validate(); err != nil {
		return nil, fmt.Errorf("decoded pixels: %w", err)
	}
	logging.Infof("Decoded %s: %s voxels, %s", filepath.Base(acq.XMLPath), rec.Pixels, logging.Bytes(rec.Pixels.SizeBytes()))

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create intermediates directory: %w", err)
	}
	swapped, err := orientation.Permute(rec.Pixels, niftiAxes)
	if err != nil {
		return nil, err
	}
	if err := nifti.WriteAffine(intermediate, swapped, intermediateAffine(rec, acq.Orientation, swapped.Dims), rec.ProtocolName()); err != nil {
		return nil, err
	}

	if store != nil {
		entry := &cache.Entry{Key: key, Sources: []string{acq.XMLPath, acq.RECPath}, Artifact: intermediate}
		if err := store.Put(entry, rec.Pixels); err != nil {
			logging.Warningf("Failed to cache conversion: %v", err)
		}
	}
	return &converted{record: rec, intensity: rec.Pixels, intermediate: intermediate}, nil
}

// checkSpacing warns when the segmenter resampled its input. The labels are
// still applied voxel for voxel.
func checkSpacing(intermediate, labelPath string) {
	want, err := nifti.VoxelSize(intermediate)
	if err != nil {
		return
	}
	got, err := nifti.VoxelSize(labelPath)
	if err != nil {
		logging.Debugf("Cannot read voxel size of %s: %v", labelPath, err)
		return
	}
	for n := range want {
		if math.Abs(want[n]-got[n]) > 1e-3 {
			logging.Warningf("Labeled volume spacing %v differs from intermediate %v", got, want)
			return
		}
	}
}

// intermediateAffine places the permuted record in scanner space using the
// plane it was acquired in. fallback is used when the header does not say.
func intermediateAffine(rec *xmlrec.Record, fallback models.Orientation, dims [3]int) nifti.Affine {
	plane, ok := rec.SliceOrientation()
	if !ok {
		plane = fallback
	}
	if rec.Angulated() {
		logging.Warningf("Ignoring image angulation of %s, the intermediate is stored unangulated", rec.ProtocolName())
	}
	size := rec.VoxelSize()
	spacing := [3]float64{size[niftiAxes[0]], size[niftiAxes[1]], size[niftiAxes[2]]}
	return nifti.PlaneAffine(plane, dims, spacing)
}

// emit writes vol as the masked record for o, using header for every
// attribute except the suffixed protocol name
func (p *Pipeline) emit(o models.Orientation, header *xmlrec.Record, vol *models.Volume) (Output, error) {
	dir := p.dir(p.params.MaskedDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Output{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	xmlPath := filepath.Join(dir, o.OutputStem()+".xml")
	rec := header.WithProtocolSuffix(p.params.ProtocolSuffix)
	if err := p.params.Codec.Encode(xmlPath, rec, vol); err != nil {
		return Output{}, fmt.Errorf("failed to write %s record: %w", o, err)
	}

	out := Output{Orientation: o, XMLPath: xmlPath, RECPath: xmlrec.RECPath(xmlPath), Dims: vol.Dims}
	if info, err := os.Stat(out.RECPath); err == nil {
		out.Size = uint64(info.Size())
	}
	logging.Infof("Wrote %s (%s, protocol %q)", xmlPath, vol, rec.ProtocolName())
	return out, nil
}

// preview renders one image per stored slice of an output record
func (p *Pipeline) preview(out *Output, window models.SeriesWindow) error {
	rec, err := p.params.Codec.Decode(out.XMLPath)
	if err != nil {
		return err
	}
	viewer, err := visualization.NewViewer(rec.Pixels, window)
	if err != nil {
		return err
	}
	dir := filepath.Join(p.dir(p.params.MaskedDir), "previews", out.Orientation.String())
	out.Previews, err = viewer.SaveSliceSequence("z", dir, p.params.PreviewFormat)
	return err
}

package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"mriroimask/internal/models"
	"mriroimask/pkg/overlay"
)

// LabelStat describes how one label was rendered
type LabelStat struct {
	Label int

	// Level is the value written to the label's voxels
	Level float64

	// Voxels is the number of sagittal voxels carrying the label
	Voxels int
}

// Output describes one masked record written by a run
type Output struct {
	Orientation models.Orientation
	XMLPath     string
	RECPath     string
	Dims        [3]int

	// Size is the REC file size in bytes
	Size uint64

	// Previews lists preview images, if any were written
	Previews []string
}

// StepTiming records the wall time of one pipeline step
type StepTiming struct {
	Name     string
	Duration time.Duration
}

// Report summarizes a completed run
type Report struct {
	// Intermediate is the NIfTI file handed to the segmenter
	Intermediate string

	// Segmentation is the labeled volume the segmenter produced
	Segmentation string

	// CacheHit is true when the sagittal conversion was reused
	CacheHit bool

	Window  models.SeriesWindow
	Labels  []LabelStat
	Overlay overlay.Summary
	Outputs []Output
	Steps   []StepTiming
	Total   time.Duration
}

func (r *Report) track(name string, start time.Time) {
	r.Steps = append(r.Steps, StepTiming{Name: name, Duration: time.Since(start)})
}

// Print writes a human readable summary of the run to w
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Segmentation: %s\n", r.Segmentation)
	if r.CacheHit {
		fmt.Fprintf(w, "Intermediate: %s (cached)\n", r.Intermediate)
	} else {
		fmt.Fprintf(w, "Intermediate: %s\n", r.Intermediate)
	}
	fmt.Fprintf(w, "Window: center %g, width %g\n", r.Window.Center, r.Window.Width)
	for _, l := range r.Labels {
		fmt.Fprintf(w, "  label %d: level %.2f, %s voxels\n", l.Label, l.Level, humanize.Comma(int64(l.Voxels)))
	}
	fmt.Fprintf(w, "Overlay range: [%.2f, %.2f], mean %.2f\n", r.Overlay.Min, r.Overlay.Max, r.Overlay.Mean)
	for _, o := range r.Outputs {
		fmt.Fprintf(w, "  %-11s %dx%dx%d  %s  %s\n", o.Orientation, o.Dims[0], o.Dims[1], o.Dims[2],
			humanize.Bytes(o.Size), o.XMLPath)
		if len(o.Previews) > 0 {
			fmt.Fprintf(w, "              %d preview images\n", len(o.Previews))
		}
	}
	for _, s := range r.Steps {
		fmt.Fprintf(w, "  %-12s %s\n", s.Name, s.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Total time: %s\n", r.Total.Round(time.Millisecond))
}

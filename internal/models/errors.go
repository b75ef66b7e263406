package models

import (
	"fmt"
	"strings"
	"time"
)

// InputDiscoveryError reports an expected input file or directory that
// could not be found
type InputDiscoveryError struct {
	// Path is the file, directory or glob that was searched
	Path string

	// Reason describes what was expected there
	Reason string

	Err error
}

func (e *InputDiscoveryError) Error() string {
	msg := fmt.Sprintf("input discovery failed for %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InputDiscoveryError) Unwrap() error { return e.Err }

// InvalidLabelError reports a label set that cannot drive an extraction
type InvalidLabelError struct {
	Labels []int
	Reason string
}

func (e *InvalidLabelError) Error() string {
	return fmt.Sprintf("invalid label set %v: %s", e.Labels, e.Reason)
}

// DegenerateWindowError reports windowing parameters or intensity data that
// make the overlay scaling undefined
type DegenerateWindowError struct {
	Window   SeriesWindow
	MaxValue float64
	Reason   string
}

func (e *DegenerateWindowError) Error() string {
	return fmt.Sprintf("degenerate window (width=%g, center=%g, max=%g): %s",
		e.Window.Width, e.Window.Center, e.MaxValue, e.Reason)
}

// ShapeMismatchError reports a volume whose shape violates an operation's
// precondition
type ShapeMismatchError struct {
	Op     string
	Want   []int
	Got    []int
	Reason string
}

func (e *ShapeMismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: shape mismatch", e.Op)
	if e.Want != nil {
		fmt.Fprintf(&b, ", want %v", e.Want)
	}
	if e.Got != nil {
		fmt.Fprintf(&b, ", got %v", e.Got)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	return b.String()
}

// ExternalToolError reports an external process that exited abnormally or
// produced no discoverable output
type ExternalToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Reason   string
	Err      error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Tool, e.Reason)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// SegmentationTimeoutError reports a segmentation run that exceeded its
// allotted wait
type SegmentationTimeoutError struct {
	Input   string
	Timeout time.Duration
	Err     error
}

func (e *SegmentationTimeoutError) Error() string {
	return fmt.Sprintf("segmentation of %s did not finish within %s", e.Input, e.Timeout)
}

func (e *SegmentationTimeoutError) Unwrap() error { return e.Err }

// Package segmentation runs the external brain segmenter on a NIfTI volume
// and locates the labeled volume it produces.
package segmentation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"mriroimask/internal/models"
	"mriroimask/pkg/logging"
)

const (
	// DefaultImage is the AssemblyNet release the label numbering refers to
	DefaultImage = "volbrain/assemblynet:1.0.0"

	// DefaultOutputPattern matches the per-structure label volume written
	// next to the input
	DefaultOutputPattern = "native_structures_*.nii.gz"

	// DefaultTimeout bounds a single segmentation run
	DefaultTimeout = 2 * time.Hour

	removeTimeout = 30 * time.Second
)

// Segmenter turns an intensity volume file into a labeled volume file
type Segmenter interface {
	Segment(ctx context.Context, volumePath string) (string, error)
}

// Func adapts a function to the Segmenter interface
type Func func(ctx context.Context, volumePath string) (string, error)

// Segment implements Segmenter
func (f Func) Segment(ctx context.Context, volumePath string) (string, error) {
	return f(ctx, volumePath)
}

// DockerSegmenter runs a containerized segmenter with the input's directory
// mounted at /data. The container writes its outputs into that directory.
type DockerSegmenter struct {
	// Docker is the docker client binary
	Docker string

	// Image is the container image to run
	Image string

	// OutputPattern is the glob, relative to the input directory, that
	// matches the labeled volume
	OutputPattern string

	// Timeout bounds the container run; zero disables the bound
	Timeout time.Duration

	// UID and GID own the files the container writes
	UID, GID int

	// Runner executes the docker command
	Runner CommandRunner
}

// NewDockerSegmenter returns a segmenter using the default image, running as
// the current user
func NewDockerSegmenter() *DockerSegmenter {
	return &DockerSegmenter{
		Docker:        "docker",
		Image:         DefaultImage,
		OutputPattern: DefaultOutputPattern,
		Timeout:       DefaultTimeout,
		UID:           os.Getuid(),
		GID:           os.Getgid(),
		Runner:        ExecRunner{RedirectToConsole: true},
	}
}

// Args returns the docker arguments used to segment the file at volumePath
// in a container called name
func (d *DockerSegmenter) Args(volumePath, name string) ([]string, error) {
	abs, err := filepath.Abs(volumePath)
	if err != nil {
		return nil, err
	}
	// EvalSymlinks mirrors the realpath the container mount needs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return []string{
		"run",
		"--rm",
		"--name", name,
		"--user", strconv.Itoa(d.UID) + ":" + strconv.Itoa(d.GID),
		"-v", filepath.Dir(abs) + ":/data",
		d.Image,
		"/data/" + filepath.Base(abs),
	}, nil
}

// containerName returns a name unique to this process and call
func containerName() string {
	return fmt.Sprintf("mriroimask-%d-%d", os.Getpid(), time.Now().UnixNano())
}

// Segment runs the container and returns the path of the labeled volume.
// Outputs left in the input directory by earlier runs are removed first.
func (d *DockerSegmenter) Segment(ctx context.Context, volumePath string) (string, error) {
	if _, err := os.Stat(volumePath); err != nil {
		return "", &models.InputDiscoveryError{Path: volumePath, Reason: "segmentation input missing", Err: err}
	}
	name := containerName()
	args, err := d.Args(volumePath, name)
	if err != nil {
		return "", fmt.Errorf("error resolving segmentation input: %w", err)
	}
	if err := RemoveOutputs(filepath.Dir(volumePath), d.OutputPattern); err != nil {
		return "", err
	}

	runCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	logging.Infof("Running %s %v", d.Docker, args)
	start := time.Now()
	result, err := d.Runner.Run(runCtx, d.Docker, args...)
	if err != nil {
		if runCtx.Err() != nil {
			d.removeContainer(name)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &models.SegmentationTimeoutError{Input: volumePath, Timeout: d.Timeout, Err: err}
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("segmentation cancelled: %w", ctx.Err())
		}
		toolErr := &models.ExternalToolError{Tool: d.Image, Reason: "container exited abnormally", Err: err}
		if result != nil {
			toolErr.ExitCode = result.ExitCode
			toolErr.Stderr = result.Stderr
		}
		return "", toolErr
	}
	logging.Infof("Segmentation finished in %s", time.Since(start).Round(time.Second))

	return FindOutput(filepath.Dir(volumePath), d.OutputPattern, d.Image)
}

// removeContainer force-removes a container whose run was interrupted. The
// client only forwards the stop signal, so the container may outlive it.
func (d *DockerSegmenter) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if _, err := d.Runner.Run(ctx, d.Docker, "rm", "-f", name); err != nil {
		logging.Warningf("Failed to remove container %s: %v", name, err)
		return
	}
	logging.Infof("Removed container %s", name)
}

// RemoveOutputs deletes the files in dir matching pattern
func RemoveOutputs(dir, pattern string) error {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("invalid output pattern %q: %w", pattern, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error removing stale output: %w", err)
		}
		logging.Debugf("Removed stale output %s", m)
	}
	return nil
}

// FindOutput returns the first file in dir matching pattern in lexical
// order, or an ExternalToolError naming tool when there is none
func FindOutput(dir, pattern, tool string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("invalid output pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", &models.ExternalToolError{
			Tool:   tool,
			Reason: fmt.Sprintf("no output matching %s in %s", pattern, dir),
		}
	}
	sort.Strings(matches)
	if len(matches) > 1 {
		logging.Warningf("Found %d segmentation outputs, using %s", len(matches), filepath.Base(matches[0]))
	}
	return matches[0], nil
}

// Package nifti moves volumes in and out of NIfTI-1 files, the container the
// segmentation tool consumes and produces.
package nifti

import (
	"fmt"
	"os"

	nii "github.com/henghuang/nifti"

	"mriroimask/internal/models"
)

// safelyLoad consumes panics emitted by the nifti library, which are
// inappropriate and must be captured in order to turn them into recoverable
// errors.
func safelyLoad(filename string) (img nii.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	img.LoadImage(filename, true)

	return
}

// safelyLoadHeader is the header-only counterpart of safelyLoad
func safelyLoadHeader(filename string) (hdr nii.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	hdr.LoadHeader(filename)

	return
}

// Load reads the first time point of a .nii or .nii.gz file into a volume
// whose axes follow the file's i, j, k order
func Load(filename string) (*models.Volume, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, &models.InputDiscoveryError{Path: filename, Reason: "NIfTI file not readable", Err: err}
	}

	img, err := safelyLoad(filename)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", filename, err)
	}

	dims := img.GetDims()
	if len(dims) < 3 {
		return nil, &models.ShapeMismatchError{Op: "nifti load", Reason: fmt.Sprintf("%s has %d dimensions", filename, len(dims))}
	}
	xm, ym, zm := dims[0], dims[1], dims[2]

	vol, err := models.NewVolume(xm, ym, zm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	for x := 0; x < xm; x++ {
		for y := 0; y < ym; y++ {
			for z := 0; z < zm; z++ {
				vol.Set(x, y, z, float64(img.GetAt(x, y, z, 0)))
			}
		}
	}
	return vol, nil
}

// VoxelSize reads the voxel spacing recorded in a file's header
func VoxelSize(filename string) ([3]float64, error) {
	hdr, err := safelyLoadHeader(filename)
	if err != nil {
		return [3]float64{}, fmt.Errorf("error loading header of %s: %w", filename, err)
	}
	return [3]float64{float64(hdr.Pixdim[1]), float64(hdr.Pixdim[2]), float64(hdr.Pixdim[3])}, nil
}

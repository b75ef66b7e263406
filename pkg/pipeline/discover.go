package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mriroimask/internal/models"
	"mriroimask/pkg/xmlrec"
)

// Acquisition locates the record exported for one orientation
type Acquisition struct {
	Orientation models.Orientation

	// XMLPath is the record header
	XMLPath string

	// RECPath is the pixel file next to the header
	RECPath string
}

// Discover finds the Sag, Cor and Tra acquisitions under inputDir. Each
// directory must hold exactly one XML header with its REC file.
func Discover(inputDir string) (map[models.Orientation]Acquisition, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, &models.InputDiscoveryError{Path: inputDir, Reason: "input directory not readable", Err: err}
	}
	if !info.IsDir() {
		return nil, &models.InputDiscoveryError{Path: inputDir, Reason: "input is not a directory"}
	}

	found := make(map[models.Orientation]Acquisition, len(models.Orientations))
	for _, o := range models.Orientations {
		acq, err := discoverOne(filepath.Join(inputDir, o.InputDir()), o)
		if err != nil {
			return nil, err
		}
		found[o] = acq
	}
	return found, nil
}

func discoverOne(dir string, o models.Orientation) (Acquisition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Acquisition{}, &models.InputDiscoveryError{
			Path:   dir,
			Reason: fmt.Sprintf("missing %s acquisition directory", o),
			Err:    err,
		}
	}

	var headers []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".xml") {
			headers = append(headers, entry.Name())
		}
	}
	sort.Strings(headers)

	switch len(headers) {
	case 0:
		return Acquisition{}, &models.InputDiscoveryError{Path: dir, Reason: "no XML record found"}
	case 1:
	default:
		return Acquisition{}, &models.InputDiscoveryError{
			Path:   dir,
			Reason: fmt.Sprintf("expected one XML record, found %d (%s)", len(headers), strings.Join(headers, ", ")),
		}
	}

	xmlPath := filepath.Join(dir, headers[0])
	recPath := xmlrec.RECPath(xmlPath)
	if _, err := os.Stat(recPath); err != nil {
		return Acquisition{}, &models.InputDiscoveryError{Path: recPath, Reason: "REC file missing for " + headers[0], Err: err}
	}
	return Acquisition{Orientation: o, XMLPath: xmlPath, RECPath: recPath}, nil
}

// Package imageio dispatches volume reading and writing to the format
// handlers: a directory is treated as a DICOM series, ".nii", ".nifti"
// and ".nii.gz" files as NIFTI-1. Anything else is rejected.
package imageio

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"bonedensity/internal/models"
	"bonedensity/pkg/dicomvol"
	"bonedensity/pkg/nifti"
)

// ErrUnsupportedFormat is returned for inputs that are neither a DICOM
// directory nor a NIFTI file.
var ErrUnsupportedFormat = errors.New("unsupported image format: expected a DICOM directory or a .nii/.nifti file")

// Format identifies the storage format of an input image.
type Format int

const (
	FormatUnknown Format = iota
	FormatDICOM
	FormatNIFTI
)

// DetectFormat classifies an input path without reading voxel data.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("error inspecting input %s: %w", path, err)
	}
	if info.IsDir() {
		return FormatDICOM, nil
	}
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".nii") || strings.HasSuffix(name, ".nifti") || strings.HasSuffix(name, ".nii.gz") {
		return FormatNIFTI, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ReadVolume loads an image or mask from a DICOM directory or NIFTI
// file, returning the volume and the detected format.
func ReadVolume(path string) (*models.Volume, Format, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, FormatUnknown, err
	}
	switch format {
	case FormatDICOM:
		vol, err := dicomvol.ReadSeries(path)
		if err != nil {
			return nil, format, err
		}
		return vol, format, nil
	case FormatNIFTI:
		vol, err := nifti.Read(path)
		if err != nil {
			return nil, format, err
		}
		return vol, format, nil
	}
	return nil, FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// WriteVolume stores a volume as NIFTI, the pipeline's only output
// image format.
func WriteVolume(vol *models.Volume, path string) error {
	return nifti.Write(vol, path)
}

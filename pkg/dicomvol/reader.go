// Package dicomvol assembles a CT volume from a directory of DICOM
// files. Slices are sorted by patient position, stored pixel values are
// rescaled to Hounsfield units, and the stacked volume is flipped along
// y and z to match the NIFTI voxel frame used by the rest of the
// pipeline.
package dicomvol

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"bonedensity/internal/models"
	"bonedensity/pkg/voxel"
)

type sliceData struct {
	position float64
	instance int
	rows     int
	cols     int
	pixels   []float64
}

// ReadSeries reads every DICOM file in dir and stacks the slices into a
// single volume in Hounsfield units.
func ReadSeries(dir string) (*models.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading DICOM directory: %w", err)
	}

	var slices []sliceData
	var spacing [3]float64
	var origin [3]float64
	spacing = [3]float64{1, 1, 1}

	for _, entry := range entries {
		if entry.IsDir() || strings.EqualFold(entry.Name(), "DICOMDIR") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		ds, err := dicom.ParseFile(path, nil)
		if err != nil {
			return nil, fmt.Errorf("error parsing DICOM file %s: %w", entry.Name(), err)
		}
		sd, err := extractSlice(ds)
		if err != nil {
			return nil, fmt.Errorf("error extracting slice from %s: %w", entry.Name(), err)
		}
		if len(slices) == 0 {
			if ps, ok := findStrings(ds, tag.PixelSpacing); ok && len(ps) == 2 {
				// PixelSpacing is (row spacing, column spacing).
				if rs, err := strconv.ParseFloat(strings.TrimSpace(ps[0]), 64); err == nil {
					spacing[1] = rs
				}
				if cs, err := strconv.ParseFloat(strings.TrimSpace(ps[1]), 64); err == nil {
					spacing[0] = cs
				}
			}
			if st, ok := findFloat(ds, tag.SliceThickness); ok {
				spacing[2] = st
			}
			if pos, ok := findStrings(ds, tag.ImagePositionPatient); ok && len(pos) == 3 {
				for i := 0; i < 3; i++ {
					if v, err := strconv.ParseFloat(strings.TrimSpace(pos[i]), 64); err == nil {
						origin[i] = v
					}
				}
			}
		}
		slices = append(slices, sd)
	}

	if len(slices) == 0 {
		return nil, fmt.Errorf("no DICOM slices found in %s", dir)
	}

	sort.Slice(slices, func(i, j int) bool {
		if slices[i].position != slices[j].position {
			return slices[i].position < slices[j].position
		}
		return slices[i].instance < slices[j].instance
	})

	rows, cols := slices[0].rows, slices[0].cols
	for _, s := range slices {
		if s.rows != rows || s.cols != cols {
			return nil, fmt.Errorf("inconsistent slice dimensions: %dx%d vs %dx%d", s.cols, s.rows, cols, rows)
		}
	}

	// Prefer the measured inter-slice distance over SliceThickness.
	if len(slices) > 1 {
		gap := slices[1].position - slices[0].position
		if gap > 0 {
			spacing[2] = gap
		}
	}

	vol := models.NewVolume(cols, rows, len(slices))
	vol.Spacing = spacing
	vol.Origin = origin
	plane := cols * rows
	for z, s := range slices {
		copy(vol.Data[z*plane:(z+1)*plane], s.pixels)
	}

	// Match the NIFTI voxel frame used downstream.
	voxel.FlipY(vol)
	voxel.FlipZ(vol)
	return vol, nil
}

func extractSlice(ds dicom.Dataset) (sliceData, error) {
	sd := sliceData{}

	rows, ok := findInt(ds, tag.Rows)
	if !ok {
		return sd, fmt.Errorf("missing Rows attribute")
	}
	cols, ok := findInt(ds, tag.Columns)
	if !ok {
		return sd, fmt.Errorf("missing Columns attribute")
	}
	sd.rows, sd.cols = rows, cols

	if n, ok := findInt(ds, tag.InstanceNumber); ok {
		sd.instance = n
	}
	if pos, ok := findStrings(ds, tag.ImagePositionPatient); ok && len(pos) == 3 {
		if z, err := strconv.ParseFloat(strings.TrimSpace(pos[2]), 64); err == nil {
			sd.position = z
		}
	} else {
		sd.position = float64(sd.instance)
	}

	slope := 1.0
	intercept := 0.0
	if v, ok := findFloat(ds, tag.RescaleSlope); ok {
		slope = v
	}
	if v, ok := findFloat(ds, tag.RescaleIntercept); ok {
		intercept = v
	}
	signed := false
	if v, ok := findInt(ds, tag.PixelRepresentation); ok && v == 1 {
		signed = true
	}

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return sd, fmt.Errorf("missing PixelData: %w", err)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return sd, fmt.Errorf("PixelData contains no frames")
	}
	fr := info.Frames[0]
	if fr.IsEncapsulated() {
		return sd, fmt.Errorf("encapsulated (compressed) transfer syntaxes are not supported")
	}

	native := fr.NativeData
	if len(native.Data) != rows*cols {
		return sd, fmt.Errorf("frame has %d samples, want %d", len(native.Data), rows*cols)
	}
	sd.pixels = make([]float64, rows*cols)
	for i, sample := range native.Data {
		v := sample[0]
		if signed && native.BitsPerSample == 16 && v > 0x7FFF {
			v -= 0x10000
		}
		sd.pixels[i] = slope*float64(v) + intercept
	}
	return sd, nil
}

func findInt(ds dicom.Dataset, t tag.Tag) (int, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch v := el.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(v[0])); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func findFloat(ds dicom.Dataset, t tag.Tag) (float64, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		if len(v) > 0 {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v[0]), 64); err == nil {
				return f, true
			}
		}
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []int:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	}
	return 0, false
}

func findStrings(ds dicom.Dataset, t tag.Tag) ([]string, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, false
	}
	if v, ok := el.Value.GetValue().([]string); ok {
		return v, true
	}
	return nil, false
}

// Package visualization exports grayscale slice images of a density
// volume for visual QA of a calibration run. Slices can be extracted
// along any of the three axes and saved as PNG sequences.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"bonedensity/internal/models"
)

// Viewer extracts 2D slices from a volume. Intensities are normalized
// to the global min/max of the volume so a slice sequence is comparable
// frame to frame.
type Viewer struct {
	vol      *models.Volume
	min, max float64
}

// NewViewer creates a viewer for the given volume.
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{vol: vol}
	if len(vol.Data) > 0 {
		v.min = floats.Min(vol.Data)
		v.max = floats.Max(vol.Data)
	}
	return v
}

// ExtractSlice returns the slice at the given position along axis "x",
// "y" or "z" as a grayscale image.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	vol := v.vol
	var w, h int
	var at func(i, j int) float64

	switch axis {
	case "x":
		if position < 0 || position >= vol.Width {
			return nil, fmt.Errorf("x slice %d out of range [0, %d)", position, vol.Width)
		}
		w, h = vol.Height, vol.Depth
		at = func(i, j int) float64 { return vol.At(position, i, j) }
	case "y":
		if position < 0 || position >= vol.Height {
			return nil, fmt.Errorf("y slice %d out of range [0, %d)", position, vol.Height)
		}
		w, h = vol.Width, vol.Depth
		at = func(i, j int) float64 { return vol.At(i, position, j) }
	case "z":
		if position < 0 || position >= vol.Depth {
			return nil, fmt.Errorf("z slice %d out of range [0, %d)", position, vol.Depth)
		}
		w, h = vol.Width, vol.Height
		at = func(i, j int) float64 { return vol.At(i, j, position) }
	default:
		return nil, fmt.Errorf("unknown axis %q: expected x, y or z", axis)
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	scale := v.max - v.min
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			value := at(i, j)
			var g uint16
			if scale > 0 {
				g = uint16((value - v.min) / scale * 65535)
			}
			img.SetGray16(i, j, color.Gray16{Y: g})
		}
	}
	return img, nil
}

// SliceCount returns the number of slices along an axis.
func (v *Viewer) SliceCount(axis string) (int, error) {
	switch axis {
	case "x":
		return v.vol.Width, nil
	case "y":
		return v.vol.Height, nil
	case "z":
		return v.vol.Depth, nil
	}
	return 0, fmt.Errorf("unknown axis %q: expected x, y or z", axis)
}

// SaveSlice writes a slice image to filename as PNG.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating slice file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("error encoding slice PNG: %w", err)
	}
	return nil
}

// SaveSliceSequence extracts every slice along an axis and saves the
// sequence into outputDir as numbered PNG files.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	count, err := v.SliceCount(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("error creating slice directory: %w", err)
	}
	for pos := 0; pos < count; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		name := filepath.Join(outputDir, fmt.Sprintf("%s_%04d.png", axis, pos))
		if err := v.SaveSlice(img, name); err != nil {
			return err
		}
	}
	return nil
}

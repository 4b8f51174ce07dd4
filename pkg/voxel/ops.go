// Package voxel provides element-wise operations on density volumes:
// label masking, mask application, non-zero statistics, clamping,
// constant padding and axis flips. These are the grid primitives the
// calibration pipeline is built from.
package voxel

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"bonedensity/internal/models"
)

// MaskLabel extracts a binary mask from a labeled volume. Voxels equal
// to label become 1, everything else 0.
func MaskLabel(mask *models.Volume, label int) *models.Volume {
	out := mask.EmptyLike()
	target := float64(label)
	for i, v := range mask.Data {
		if v == target {
			out.Data[i] = 1
		}
	}
	return out
}

// Apply masks an image with a binary mask. Voxels where the mask is
// zero are set to zero; all other voxels keep their image value.
func Apply(img, mask *models.Volume) (*models.Volume, error) {
	if !img.SameGrid(mask) {
		return nil, fmt.Errorf("image %dx%dx%d and mask %dx%dx%d dimensions differ",
			img.Width, img.Height, img.Depth, mask.Width, mask.Height, mask.Depth)
	}
	out := img.EmptyLike()
	for i, m := range mask.Data {
		if m != 0 {
			out.Data[i] = img.Data[i]
		}
	}
	return out, nil
}

// MeanNonzero computes the mean over non-zero voxels only, mirroring a
// zero-ignoring intensity histogram. It returns the mean and the number
// of voxels that contributed. A count of zero yields a mean of zero.
func MeanNonzero(vol *models.Volume) (float64, int) {
	values := make([]float64, 0, len(vol.Data))
	for _, v := range vol.Data {
		if v != 0 {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, 0
	}
	return stat.Mean(values, nil), len(values)
}

// CountNonzero returns the number of non-zero voxels.
func CountNonzero(vol *models.Volume) int {
	n := 0
	for _, v := range vol.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// ClampLower replaces every voxel value below floor with floor.
// Used to enforce a minimum density before modulus derivation.
func ClampLower(vol *models.Volume, floor float64) *models.Volume {
	out := vol.Clone()
	for i, v := range out.Data {
		if v < floor {
			out.Data[i] = floor
		}
	}
	return out
}

// PadToExtent embeds vol into a larger grid of the given dimensions at
// voxel offset (ox, oy, oz), filling the remainder with constant.
// The offset region must fit inside the target grid.
func PadToExtent(vol *models.Volume, width, height, depth, ox, oy, oz int, constant float64) (*models.Volume, error) {
	if ox < 0 || oy < 0 || oz < 0 ||
		ox+vol.Width > width || oy+vol.Height > height || oz+vol.Depth > depth {
		return nil, fmt.Errorf("volume %dx%dx%d at offset (%d,%d,%d) exceeds target extent %dx%dx%d",
			vol.Width, vol.Height, vol.Depth, ox, oy, oz, width, height, depth)
	}
	out := models.NewVolume(width, height, depth)
	out.Spacing = vol.Spacing
	out.Origin = vol.Origin
	if constant != 0 {
		for i := range out.Data {
			out.Data[i] = constant
		}
	}
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			srcRow := vol.Index(0, y, z)
			dstRow := out.Index(ox, y+oy, z+oz)
			copy(out.Data[dstRow:dstRow+vol.Width], vol.Data[srcRow:srcRow+vol.Width])
		}
	}
	return out, nil
}

// FlipY mirrors the volume along the y axis in place.
func FlipY(vol *models.Volume) {
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height/2; y++ {
			ym := vol.Height - 1 - y
			for x := 0; x < vol.Width; x++ {
				i, j := vol.Index(x, y, z), vol.Index(x, ym, z)
				vol.Data[i], vol.Data[j] = vol.Data[j], vol.Data[i]
			}
		}
	}
}

// FlipZ mirrors the volume along the z axis in place.
func FlipZ(vol *models.Volume) {
	plane := vol.Width * vol.Height
	for z := 0; z < vol.Depth/2; z++ {
		zm := vol.Depth - 1 - z
		a := vol.Data[z*plane : (z+1)*plane]
		b := vol.Data[zm*plane : (zm+1)*plane]
		for i := range a {
			a[i], b[i] = b[i], a[i]
		}
	}
}

// Package femodel prepares segmented density images for finite-element
// mesh generation: synthetic PMMA end-cap regions for mechanical
// testing simulation, and the density-to-modulus material table. The FE
// meshing and solving themselves are external collaborators.
package femodel

import (
	"fmt"
	"math"

	"bonedensity/internal/models"
	"bonedensity/pkg/voxel"
)

// Axis selects a volume axis for cap padding.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Side selects which end of an axis a cap extension grows from.
type Side int

const (
	SideLow Side = iota
	SideHigh
)

// NewCapBlock creates a uniform block of cap material covering the
// physical bounds [xmin xmax ymin ymax zmin zmax] in mm, on a grid with
// the given spacing. The block origin is set to the low corner of the
// bounds.
func NewCapBlock(bounds [6]float64, spacing [3]float64, fill float64) (*models.Volume, error) {
	for axis := 0; axis < 3; axis++ {
		if bounds[2*axis+1] < bounds[2*axis] {
			return nil, fmt.Errorf("cap bounds inverted on axis %d: [%g, %g]", axis, bounds[2*axis], bounds[2*axis+1])
		}
		if spacing[axis] <= 0 {
			return nil, fmt.Errorf("cap spacing must be positive, got %g on axis %d", spacing[axis], axis)
		}
	}
	width := int(math.Round((bounds[1]-bounds[0])/spacing[0])) + 1
	height := int(math.Round((bounds[3]-bounds[2])/spacing[1])) + 1
	depth := int(math.Round((bounds[5]-bounds[4])/spacing[2])) + 1

	capVol := models.NewVolume(width, height, depth)
	capVol.Spacing = spacing
	capVol.Origin = [3]float64{bounds[0], bounds[2], bounds[4]}
	for i := range capVol.Data {
		capVol.Data[i] = fill
	}
	return capVol, nil
}

// ExtendCap grows a cap block by thickness voxels of cap material along
// one side of an axis, shifting the origin when the low side grows.
// This mirrors constant-padding a synthetic end cap beyond the bone
// surface it rests on.
func ExtendCap(capVol *models.Volume, axis Axis, side Side, thickness int, matValue float64) (*models.Volume, error) {
	if thickness < 0 {
		return nil, fmt.Errorf("cap thickness must be non-negative, got %d", thickness)
	}
	w, h, d := capVol.Width, capVol.Height, capVol.Depth
	ox, oy, oz := 0, 0, 0
	origin := capVol.Origin
	switch axis {
	case AxisX:
		w += thickness
		if side == SideLow {
			ox = thickness
			origin[0] -= float64(thickness) * capVol.Spacing[0]
		}
	case AxisY:
		h += thickness
		if side == SideLow {
			oy = thickness
			origin[1] -= float64(thickness) * capVol.Spacing[1]
		}
	case AxisZ:
		d += thickness
		if side == SideLow {
			oz = thickness
			origin[2] -= float64(thickness) * capVol.Spacing[2]
		}
	default:
		return nil, fmt.Errorf("unknown axis %d", axis)
	}
	out, err := voxel.PadToExtent(capVol, w, h, d, ox, oy, oz, matValue)
	if err != nil {
		return nil, err
	}
	out.Origin = origin
	return out, nil
}

// CapToImageGrid embeds a cap block into the voxel grid of the subject
// image, placing it by the physical offset between the two origins.
// Voxels outside the cap are zero.
func CapToImageGrid(capVol, img *models.Volume) (*models.Volume, error) {
	var off [3]int
	for axis := 0; axis < 3; axis++ {
		if img.Spacing[axis] <= 0 {
			return nil, fmt.Errorf("image spacing must be positive, got %g on axis %d", img.Spacing[axis], axis)
		}
		off[axis] = int(math.Round((capVol.Origin[axis] - img.Origin[axis]) / img.Spacing[axis]))
	}
	out, err := voxel.PadToExtent(capVol, img.Width, img.Height, img.Depth, off[0], off[1], off[2], 0)
	if err != nil {
		return nil, fmt.Errorf("cap does not fit the image grid: %w", err)
	}
	out.Origin = img.Origin
	return out, nil
}

// Combine merges synthetic PMMA caps into a segmented image. Cap voxels
// that do not overlap the segmentation take the PMMA material ID; where
// bone and cap overlap the bone label wins. Any negative voxel in the
// result is floored to zero. All caps must already be on the image grid
// (see CapToImageGrid).
func Combine(seg *models.Volume, pmmaID float64, caps ...*models.Volume) (*models.Volume, error) {
	out := seg.Clone()
	for n, capVol := range caps {
		if !seg.SameGrid(capVol) {
			return nil, fmt.Errorf("cap %d grid %dx%dx%d does not match image grid %dx%dx%d",
				n, capVol.Width, capVol.Height, capVol.Depth, seg.Width, seg.Height, seg.Depth)
		}
		for i, c := range capVol.Data {
			if c != 0 && out.Data[i] == 0 {
				out.Data[i] = pmmaID
			}
		}
	}
	for i, v := range out.Data {
		if v < 0 {
			out.Data[i] = 0
		}
	}
	return out, nil
}

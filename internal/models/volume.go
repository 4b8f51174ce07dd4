package models

// Volume represents a 3D voxel grid with geometric metadata.
// Voxel values are stored in a flat array with x varying fastest,
// then y, then z, matching the NIFTI on-disk ordering.
type Volume struct {
	// Data is the voxel data as a 1D array in x-fastest order
	Data []float64

	// Width is the number of voxels along x
	Width int

	// Height is the number of voxels along y
	Height int

	// Depth is the number of voxels along z
	Depth int

	// Spacing is the physical voxel size along each axis in mm
	Spacing [3]float64

	// Origin is the physical position of voxel (0,0,0) in mm
	Origin [3]float64
}

// NewVolume allocates a zero-filled volume with the given dimensions
// and unit spacing.
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:    make([]float64, width*height*depth),
		Width:   width,
		Height:  height,
		Depth:   depth,
		Spacing: [3]float64{1, 1, 1},
	}
}

// Index returns the flat array index for voxel coordinates (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the voxel value at (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a voxel value at (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// NumVoxels returns the total voxel count.
func (v *Volume) NumVoxels() int {
	return v.Width * v.Height * v.Depth
}

// VoxelVolume returns the physical volume of a single voxel in mm^3.
func (v *Volume) VoxelVolume() float64 {
	return v.Spacing[0] * v.Spacing[1] * v.Spacing[2]
}

// SameGrid reports whether two volumes share dimensions.
func (v *Volume) SameGrid(other *Volume) bool {
	return v.Width == other.Width && v.Height == other.Height && v.Depth == other.Depth
}

// Clone returns a deep copy of the volume, preserving geometry.
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:    make([]float64, len(v.Data)),
		Width:   v.Width,
		Height:  v.Height,
		Depth:   v.Depth,
		Spacing: v.Spacing,
		Origin:  v.Origin,
	}
	copy(out.Data, v.Data)
	return out
}

// EmptyLike returns a zero-filled volume with the same geometry as v.
func (v *Volume) EmptyLike() *Volume {
	return &Volume{
		Data:    make([]float64, len(v.Data)),
		Width:   v.Width,
		Height:  v.Height,
		Depth:   v.Depth,
		Spacing: v.Spacing,
		Origin:  v.Origin,
	}
}

// PhantomRod describes one calibration rod of the density phantom.
// Rods are labeled 1 through 5 in the calibration mask, rod A to rod E.
type PhantomRod struct {
	// Label is the integer mask label identifying the rod (1..5)
	Label int

	// H2ODensity is the nominal H2O-equivalent density in mg/cc
	H2ODensity float64

	// K2HPO4Density is the nominal K2HPO4-equivalent density in mg/cc
	K2HPO4Density float64

	// MeanHU is the measured mean intensity over the rod ROI
	MeanHU float64
}

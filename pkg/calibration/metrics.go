package calibration

import (
	"bonedensity/internal/models"
	"bonedensity/pkg/voxel"
)

// BMDMetrics summarizes a calibrated bone volume of interest.
type BMDMetrics struct {
	// IntegralBMD is the mean density over non-zero voxels in mg/cc
	IntegralBMD float64

	// BMC is the bone mineral content in mg
	BMC float64

	// BoneVolumeMM and BoneVolumeCM are the non-zero voxel volume in
	// mm^3 and cm^3
	BoneVolumeMM float64
	BoneVolumeCM float64
}

// ComputeBMDMetrics measures integral BMD, BMC and bone volume over the
// non-zero voxels of a calibrated, masked density volume. Returns an
// EmptyROIError with label 0 when the volume has no non-zero voxels.
func ComputeBMDMetrics(vol *models.Volume) (*BMDMetrics, error) {
	mean, count := voxel.MeanNonzero(vol)
	if count == 0 {
		return nil, &EmptyROIError{Label: 0}
	}
	voxelMM := vol.VoxelVolume()
	volumeMM := float64(count) * voxelMM
	volumeCM := volumeMM / 1000

	return &BMDMetrics{
		IntegralBMD:  mean,
		BMC:          mean * volumeCM,
		BoneVolumeMM: volumeMM,
		BoneVolumeCM: volumeCM,
	}, nil
}

package calibration

import (
	"math"
	"testing"

	"bonedensity/internal/models"
)

// TestAshConversions verifies the fixed densitometry scale conversions.
func TestAshConversions(t *testing.T) {
	vol := models.NewVolume(3, 1, 1)
	vol.Data = []float64{0, 100, 500}

	ash := K2HPO4ToAsh(vol)
	for i, v := range vol.Data {
		want := 1.06*v + 38.9
		if math.Abs(ash.Data[i]-want) > 1e-12 {
			t.Errorf("K2HPO4ToAsh voxel %d: expected %g, got %g", i, want, ash.Data[i])
		}
	}

	ash = CHAToAsh(vol)
	for i, v := range vol.Data {
		want := 0.839*v + 69.8
		if math.Abs(ash.Data[i]-want) > 1e-12 {
			t.Errorf("CHAToAsh voxel %d: expected %g, got %g", i, want, ash.Data[i])
		}
	}
}

// TestComputeBMDMetrics verifies metric computation over non-zero
// voxels with a known voxel volume.
func TestComputeBMDMetrics(t *testing.T) {
	vol := models.NewVolume(2, 2, 1)
	vol.Spacing = [3]float64{2, 2, 2.5} // 10 mm^3 per voxel
	vol.Data = []float64{100, 300, 0, 0}

	m, err := ComputeBMDMetrics(vol)
	if err != nil {
		t.Fatalf("ComputeBMDMetrics failed: %v", err)
	}
	if m.IntegralBMD != 200 {
		t.Errorf("Expected integral BMD 200, got %g", m.IntegralBMD)
	}
	if m.BoneVolumeMM != 20 {
		t.Errorf("Expected bone volume 20 mm^3, got %g", m.BoneVolumeMM)
	}
	if math.Abs(m.BoneVolumeCM-0.02) > 1e-12 {
		t.Errorf("Expected bone volume 0.02 cm^3, got %g", m.BoneVolumeCM)
	}
	if math.Abs(m.BMC-4) > 1e-12 {
		t.Errorf("Expected BMC 4 mg, got %g", m.BMC)
	}

	empty := models.NewVolume(2, 2, 1)
	if _, err := ComputeBMDMetrics(empty); err == nil {
		t.Error("Expected an error for a volume with no non-zero voxels")
	}
}

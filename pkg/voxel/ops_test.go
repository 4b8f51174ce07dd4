package voxel

import (
	"math"
	"testing"

	"bonedensity/internal/models"
)

// TestMaskLabel verifies binary extraction of a single label.
func TestMaskLabel(t *testing.T) {
	mask := models.NewVolume(4, 1, 1)
	mask.Data = []float64{0, 2, 3, 2}

	bin := MaskLabel(mask, 2)
	want := []float64{0, 1, 0, 1}
	for i := range want {
		if bin.Data[i] != want[i] {
			t.Errorf("Voxel %d: expected %g, got %g", i, want[i], bin.Data[i])
		}
	}
}

// TestApply verifies masking and the grid mismatch guard.
func TestApply(t *testing.T) {
	img := models.NewVolume(4, 1, 1)
	img.Data = []float64{10, 20, 30, 40}
	mask := models.NewVolume(4, 1, 1)
	mask.Data = []float64{1, 0, 1, 0}

	out, err := Apply(img, mask)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []float64{10, 0, 30, 0}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("Voxel %d: expected %g, got %g", i, want[i], out.Data[i])
		}
	}

	if _, err := Apply(img, models.NewVolume(3, 1, 1)); err == nil {
		t.Error("Expected an error for mismatched grids")
	}
}

// TestMeanNonzero verifies zero-excluded averaging and the empty case.
func TestMeanNonzero(t *testing.T) {
	vol := models.NewVolume(5, 1, 1)
	vol.Data = []float64{0, 10, 0, 20, 30}

	mean, count := MeanNonzero(vol)
	if count != 3 {
		t.Errorf("Expected 3 contributing voxels, got %d", count)
	}
	if math.Abs(mean-20) > 1e-12 {
		t.Errorf("Expected mean 20, got %g", mean)
	}

	mean, count = MeanNonzero(models.NewVolume(5, 1, 1))
	if count != 0 || mean != 0 {
		t.Errorf("Expected (0, 0) for an all-zero volume, got (%g, %d)", mean, count)
	}
}

// TestClampLower verifies the density floor behavior.
func TestClampLower(t *testing.T) {
	vol := models.NewVolume(4, 1, 1)
	vol.Data = []float64{-100, 0, 0.05, 5}

	out := ClampLower(vol, 0.1)
	want := []float64{0.1, 0.1, 0.1, 5}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("Voxel %d: expected %g, got %g", i, want[i], out.Data[i])
		}
	}
	if vol.Data[0] != -100 {
		t.Error("ClampLower must not modify its input")
	}
}

// TestPadToExtent verifies embedding with a constant fill and the
// bounds guard.
func TestPadToExtent(t *testing.T) {
	vol := models.NewVolume(2, 1, 1)
	vol.Data = []float64{7, 8}

	out, err := PadToExtent(vol, 4, 3, 2, 1, 1, 0, -1)
	if err != nil {
		t.Fatalf("PadToExtent failed: %v", err)
	}
	if out.Width != 4 || out.Height != 3 || out.Depth != 2 {
		t.Fatalf("Unexpected output dimensions %dx%dx%d", out.Width, out.Height, out.Depth)
	}
	if out.At(1, 1, 0) != 7 || out.At(2, 1, 0) != 8 {
		t.Error("Source voxels not placed at the expected offset")
	}
	if out.At(0, 0, 0) != -1 || out.At(3, 2, 1) != -1 {
		t.Error("Padding voxels should carry the constant fill")
	}

	if _, err := PadToExtent(vol, 2, 1, 1, 1, 0, 0, 0); err == nil {
		t.Error("Expected an error when the offset volume exceeds the target extent")
	}
}

// TestFlips verifies that y and z mirroring are self-inverse and move
// voxels to the mirrored coordinates.
func TestFlips(t *testing.T) {
	vol := models.NewVolume(2, 3, 4)
	for i := range vol.Data {
		vol.Data[i] = float64(i)
	}
	orig := vol.Clone()

	FlipY(vol)
	if vol.At(0, 0, 0) != orig.At(0, 2, 0) {
		t.Error("FlipY did not mirror along y")
	}
	FlipY(vol)

	FlipZ(vol)
	if vol.At(1, 1, 0) != orig.At(1, 1, 3) {
		t.Error("FlipZ did not mirror along z")
	}
	FlipZ(vol)

	for i := range vol.Data {
		if vol.Data[i] != orig.Data[i] {
			t.Fatalf("Double flip should restore the volume, voxel %d differs", i)
		}
	}
}

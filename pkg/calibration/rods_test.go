package calibration

import (
	"errors"
	"math"
	"testing"

	"bonedensity/internal/models"
)

// buildPhantomVolumes creates a small image with five labeled rod
// regions. Each rod occupies one z-plane column and carries a distinct
// intensity.
func buildPhantomVolumes(intensities [5]float64) (*models.Volume, *models.Volume) {
	img := models.NewVolume(10, 2, 5)
	mask := models.NewVolume(10, 2, 5)
	for label := 1; label <= 5; label++ {
		z := label - 1
		for y := 0; y < 2; y++ {
			for x := 0; x < 4; x++ {
				mask.Set(x, y, z, float64(label))
				img.Set(x, y, z, intensities[label-1])
			}
		}
	}
	return img, mask
}

// TestExtractRodMeans verifies per-label mean extraction over a
// synthetic phantom image.
func TestExtractRodMeans(t *testing.T) {
	intensities := [5]float64{-20, 10, 120, 300, 700}
	img, mask := buildPhantomVolumes(intensities)

	means, err := ExtractRodMeans(img, mask)
	if err != nil {
		t.Fatalf("ExtractRodMeans failed: %v", err)
	}
	if len(means) != NumRods {
		t.Fatalf("Expected %d means, got %d", NumRods, len(means))
	}
	for i, want := range intensities {
		if math.Abs(means[i]-want) > 1e-12 {
			t.Errorf("Rod %d: expected mean %g, got %g", i+1, want, means[i])
		}
	}
}

// TestExtractRodMeansIgnoresZeroVoxels verifies that zero-valued
// background voxels inside an ROI do not dilute the mean.
func TestExtractRodMeansIgnoresZeroVoxels(t *testing.T) {
	intensities := [5]float64{100, 200, 300, 400, 500}
	img, mask := buildPhantomVolumes(intensities)

	// Zero out half of rod 1's voxels; the mean must stay at 100.
	for x := 0; x < 4; x++ {
		img.Set(x, 0, 0, 0)
	}

	means, err := ExtractRodMeans(img, mask)
	if err != nil {
		t.Fatalf("ExtractRodMeans failed: %v", err)
	}
	if math.Abs(means[0]-100) > 1e-12 {
		t.Errorf("Expected zero voxels to be excluded from the mean, got %g", means[0])
	}
}

// TestExtractRodMeansEmptyROI verifies that a missing rod label fails
// with a typed error identifying the rod.
func TestExtractRodMeansEmptyROI(t *testing.T) {
	intensities := [5]float64{100, 200, 300, 400, 500}
	img, mask := buildPhantomVolumes(intensities)

	// Erase label 4 entirely.
	for i, v := range mask.Data {
		if v == 4 {
			mask.Data[i] = 0
		}
	}

	_, err := ExtractRodMeans(img, mask)
	var emptyROI *EmptyROIError
	if !errors.As(err, &emptyROI) {
		t.Fatalf("Expected EmptyROIError, got %v", err)
	}
	if emptyROI.Label != 4 {
		t.Errorf("Expected label 4 in error, got %d", emptyROI.Label)
	}
}

// TestMeasureRods verifies rod record assembly and the count guard.
func TestMeasureRods(t *testing.T) {
	intensities := [5]float64{-20, 10, 120, 300, 700}
	img, mask := buildPhantomVolumes(intensities)

	rods, err := MeasureRods(img, mask, testH2O, testK2HPO4)
	if err != nil {
		t.Fatalf("MeasureRods failed: %v", err)
	}
	for i, rod := range rods {
		if rod.Label != i+1 {
			t.Errorf("Rod %d: expected label %d, got %d", i, i+1, rod.Label)
		}
		if rod.H2ODensity != testH2O[i] || rod.K2HPO4Density != testK2HPO4[i] {
			t.Errorf("Rod %d: density values out of order", i)
		}
	}

	if _, err := MeasureRods(img, mask, testH2O[:4], testK2HPO4); !errors.Is(err, ErrRodCountMismatch) {
		t.Errorf("Expected ErrRodCountMismatch for short density list, got %v", err)
	}
}

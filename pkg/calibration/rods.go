package calibration

import (
	"fmt"

	"bonedensity/internal/models"
	"bonedensity/pkg/voxel"
)

// ExtractRodMeans measures the mean intensity of each calibration rod.
// The mask labels voxels 1 through NumRods, one label per rod; for each
// label the matching voxels are isolated, applied as a binary mask over
// the subject image, and averaged over non-zero voxels only.
//
// The mask must be co-registered with the image and share its grid.
// A label with no matching voxels yields an EmptyROIError.
func ExtractRodMeans(img, mask *models.Volume) ([]float64, error) {
	means := make([]float64, NumRods)
	for label := 1; label <= NumRods; label++ {
		rod := voxel.MaskLabel(mask, label)
		roi, err := voxel.Apply(img, rod)
		if err != nil {
			return nil, fmt.Errorf("rod label %d: %w", label, err)
		}
		mean, count := voxel.MeanNonzero(roi)
		if count == 0 {
			return nil, &EmptyROIError{Label: label}
		}
		means[label-1] = mean
	}
	return means, nil
}

// MeasureRods builds phantom rod records from the image, the rod mask
// and the nominal phantom densities, in rod order.
func MeasureRods(img, mask *models.Volume, h2oDensities, k2hpo4Densities []float64) ([]models.PhantomRod, error) {
	if len(h2oDensities) != NumRods || len(k2hpo4Densities) != NumRods {
		return nil, ErrRodCountMismatch
	}
	means, err := ExtractRodMeans(img, mask)
	if err != nil {
		return nil, err
	}
	rods := make([]models.PhantomRod, NumRods)
	for i := range rods {
		rods[i] = models.PhantomRod{
			Label:         i + 1,
			H2ODensity:    h2oDensities[i],
			K2HPO4Density: k2hpo4Densities[i],
			MeanHU:        means[i],
		}
	}
	return rods, nil
}

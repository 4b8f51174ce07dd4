package calibration

import (
	"bonedensity/internal/models"
)

// Fixed linear conversions between bone densitometry scales. Both are
// published empirical relationships:
//
//	K2HPO4 to ash: Keyak et al., J Biomed Mater Res, 1994
//	CHA to ash:    Kaneko et al., J Biomech, 2004
const (
	k2hpo4AshSlope     = 1.06
	k2hpo4AshIntercept = 38.9
	chaAshSlope        = 0.839
	chaAshIntercept    = 69.8
)

func affineVolume(img *models.Volume, slope, intercept float64) *models.Volume {
	out := img.EmptyLike()
	for i, v := range img.Data {
		out.Data[i] = slope*v + intercept
	}
	return out
}

// K2HPO4ToAsh converts a K2HPO4-equivalent density volume to ash
// density, mg/cc in and out.
func K2HPO4ToAsh(img *models.Volume) *models.Volume {
	return affineVolume(img, k2hpo4AshSlope, k2hpo4AshIntercept)
}

// CHAToAsh converts a CHA-equivalent density volume to ash density,
// mg/cc in and out.
func CHAToAsh(img *models.Volume) *models.Volume {
	return affineVolume(img, chaAshSlope, chaAshIntercept)
}

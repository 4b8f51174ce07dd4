package calibration

import (
	"errors"
	"fmt"
)

// ErrRodCountMismatch is returned when the density or HU inputs do not
// contain exactly one value per phantom rod.
var ErrRodCountMismatch = errors.New("calibration requires exactly one density and HU value per phantom rod")

// ErrDegenerateFit is returned when the corrected regression slope is
// zero, which would make the calibration coefficients undefined.
var ErrDegenerateFit = errors.New("degenerate fit: corrected regression slope is zero")

// EmptyROIError reports a rod label with no matching voxels in the
// calibration mask, leaving its mean intensity undefined.
type EmptyROIError struct {
	Label int
}

func (e *EmptyROIError) Error() string {
	return fmt.Sprintf("rod label %d has no matching voxels in the calibration mask", e.Label)
}

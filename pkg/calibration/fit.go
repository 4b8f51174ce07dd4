// Package calibration implements phantom-based density calibration for
// CT volumes. Mean intensities are measured over the five rods of a
// Mindways Model 3 style calibration phantom, a linear model is fitted
// relating the known rod densities to the measured values, and the
// fitted model is converted into an affine HU-to-density transform that
// is applied to every voxel of the subject image.
package calibration

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"bonedensity/internal/models"
)

// NumRods is the number of calibration rods in the density phantom.
const NumRods = 5

// Fixed correction offsets from the phantom manufacturer's reference
// formula. They relate the regression line to the CT scaling of the
// specific phantom and must not be re-derived at runtime.
const (
	sigmaCTOffset = 0.2174
	betaCTOffset  = 999.6
)

// Default rod densities for the Mindways Model 3 CT phantom, rod A to
// rod E, in mg/cc.
var (
	DefaultH2ODensities    = []float64{1012.25, 1056.95, 1103.57, 1119.52, 923.20}
	DefaultK2HPO4Densities = []float64{-51.83, -53.40, 58.88, 157.05, 375.83}
)

// Fit holds the result of a phantom calibration regression. The raw
// regression values and the intermediate corrected parameters are kept
// alongside the final coefficients so a run can be audited from its
// report alone. A Fit is immutable once computed.
type Fit struct {
	// XValues are the K2HPO4-equivalent rod densities in mg/cc
	XValues []float64

	// YValues are the measured rod HU minus the H2O-equivalent densities
	YValues []float64

	// RegressionSlope and RegressionIntercept are the raw ordinary
	// least squares parameters of YValues against XValues
	RegressionSlope     float64
	RegressionIntercept float64

	// SigmaCT and BetaCT are the offset-corrected regression parameters
	SigmaCT float64
	BetaCT  float64

	// Slope and Intercept form the final affine HU-to-density transform
	Slope     float64
	Intercept float64
}

// NewFit computes the calibration fit from the nominal H2O-equivalent
// densities, the nominal K2HPO4-equivalent densities and the measured
// mean HU of the five rods. The three slices must be ordered rod A to
// rod E; that correspondence is the caller's responsibility and cannot
// be verified here.
//
// Returns ErrRodCountMismatch unless all inputs have exactly NumRods
// entries, and ErrDegenerateFit when the corrected slope is zero or
// the regression is undefined (fewer than two distinct densities).
func NewFit(h2oDensities, k2hpo4Densities, measuredHU []float64) (*Fit, error) {
	if len(h2oDensities) != NumRods || len(k2hpo4Densities) != NumRods || len(measuredHU) != NumRods {
		return nil, ErrRodCountMismatch
	}

	x := make([]float64, NumRods)
	y := make([]float64, NumRods)
	copy(x, k2hpo4Densities)
	for i := range y {
		y[i] = measuredHU[i] - h2oDensities[i]
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	return finalizeFit(slope, intercept, x, y)
}

// finalizeFit converts raw regression parameters into calibration
// coefficients via the fixed phantom correction.
func finalizeFit(slope, intercept float64, x, y []float64) (*Fit, error) {
	// Fewer than two distinct x values leave the regression undefined
	// and gonum reports that as NaN parameters.
	sigmaCT := slope - sigmaCTOffset
	betaCT := intercept + betaCTOffset
	if sigmaCT == 0 || !isFinite(sigmaCT) || !isFinite(betaCT) {
		return nil, ErrDegenerateFit
	}

	return &Fit{
		XValues:             x,
		YValues:             y,
		RegressionSlope:     slope,
		RegressionIntercept: intercept,
		SigmaCT:             sigmaCT,
		BetaCT:              betaCT,
		Slope:               1 / sigmaCT,
		Intercept:           -betaCT / sigmaCT,
	}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FitFromRods computes the calibration fit from fully populated phantom
// rod records, in rod order.
func FitFromRods(rods []models.PhantomRod) (*Fit, error) {
	if len(rods) != NumRods {
		return nil, ErrRodCountMismatch
	}
	h2o := make([]float64, NumRods)
	k2hpo4 := make([]float64, NumRods)
	hu := make([]float64, NumRods)
	for i, r := range rods {
		h2o[i] = r.H2ODensity
		k2hpo4[i] = r.K2HPO4Density
		hu[i] = r.MeanHU
	}
	return NewFit(h2o, k2hpo4, hu)
}

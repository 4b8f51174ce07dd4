// Package pipeline wires the phantom calibration stages into a single
// run: read image and mask, measure the calibration rods, fit the
// density model, apply the affine transform to every voxel and write
// the calibrated image plus an audit report.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bonedensity/internal/models"
	"bonedensity/pkg/calibration"
	"bonedensity/pkg/femodel"
	"bonedensity/pkg/imageio"
	"bonedensity/pkg/visualization"
	"bonedensity/pkg/voxel"
)

// Params holds the configuration of one calibration run.
type Params struct {
	// ImagePath is a DICOM directory or NIFTI file with the subject CT
	ImagePath string

	// MaskPath is a co-registered labeled mask of the calibration rods
	MaskPath string

	// OutputDir receives the calibrated image and the report. Empty
	// means the directory of the input image.
	OutputDir string

	// H2ODensities and K2HPO4Densities are the nominal phantom rod
	// densities, rod A to rod E, in mg/cc
	H2ODensities    []float64
	K2HPO4Densities []float64

	// NumWorkers bounds the goroutines used for the voxel-wise
	// transform; values below 1 mean all CPUs
	NumWorkers int

	// ConvertToAsh additionally writes an ash-density image derived
	// from the K2HPO4-calibrated one
	ConvertToAsh bool

	// DensityFloor replaces calibrated values below FloorValue with
	// FloorValue before writing
	DensityFloor bool
	FloorValue   float64

	// QASlices saves axial grayscale slices of the calibrated volume
	QASlices    bool
	QASlicesDir string

	// MaterialTable derives a density-modulus material table from the
	// calibrated image for FE mesh generation
	MaterialTable bool

	// PoissonsRatio, ElasticEmax and ElasticExponent define the
	// power-law bone material model; the PMMA fields describe the
	// end-cap entry of the table
	PoissonsRatio     float64
	ElasticEmax       float64
	ElasticExponent   float64
	PMMAMaterialID    int
	PMMAModulus       float64
	PMMAPoissonsRatio float64
}

// Result collects the artifacts of a completed run.
type Result struct {
	Fit               *calibration.Fit
	Rods              []models.PhantomRod
	Calibrated        *models.Volume
	OutputPath        string
	AshOutputPath     string
	ReportPath        string
	MaterialTablePath string
}

// Pipeline runs phantom calibration for a single subject image.
type Pipeline struct {
	params *Params
	log    zerolog.Logger
	result Result
}

// New creates a pipeline with the provided parameters and logger.
func New(params *Params, log zerolog.Logger) *Pipeline {
	return &Pipeline{params: params, log: log}
}

// Result returns the artifacts of the last successful Run.
func (p *Pipeline) Result() Result {
	return p.result
}

// Run executes the calibration from input reading through report
// writing. Any failure aborts the run; no partial outputs are retried.
func (p *Pipeline) Run() error {
	params := p.params

	p.log.Info().Str("image", params.ImagePath).Msg("reading input image")
	img, imgFormat, err := imageio.ReadVolume(params.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to read input image: %w", err)
	}
	p.log.Debug().
		Int("width", img.Width).Int("height", img.Height).Int("depth", img.Depth).
		Floats64("spacing", img.Spacing[:]).
		Msg("image loaded")

	p.log.Info().Str("mask", params.MaskPath).Msg("reading calibration mask")
	mask, _, err := imageio.ReadVolume(params.MaskPath)
	if err != nil {
		return fmt.Errorf("failed to read calibration mask: %w", err)
	}
	if !img.SameGrid(mask) {
		return fmt.Errorf("image %dx%dx%d and mask %dx%dx%d are not on the same grid",
			img.Width, img.Height, img.Depth, mask.Width, mask.Height, mask.Depth)
	}

	p.log.Info().Msg("extracting calibration rod ROIs")
	rods, err := calibration.MeasureRods(img, mask, params.H2ODensities, params.K2HPO4Densities)
	if err != nil {
		return fmt.Errorf("failed to measure calibration rods: %w", err)
	}
	for _, rod := range rods {
		p.log.Debug().Int("label", rod.Label).Float64("meanHU", rod.MeanHU).Msg("rod measured")
	}

	p.log.Info().Msg("determining phantom calibration parameters")
	fit, err := calibration.FitFromRods(rods)
	if err != nil {
		return fmt.Errorf("failed to fit calibration model: %w", err)
	}
	p.log.Info().
		Float64("slope", fit.Slope).
		Float64("intercept", fit.Intercept).
		Msg("calibration parameters determined")

	p.log.Info().Msg("applying image calibration")
	calibrated := fit.Apply(img, params.NumWorkers)
	if params.DensityFloor {
		p.log.Info().Float64("floor", params.FloorValue).Msg("applying density floor")
		calibrated = voxel.ClampLower(calibrated, params.FloorValue)
	}

	outputDir, baseName, imageBase := p.outputNames(imgFormat)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(outputDir, imageBase+"_K2HPO4.nii")
	p.log.Info().Str("file", outputPath).Msg("writing calibrated image")
	if err := imageio.WriteVolume(calibrated, outputPath); err != nil {
		return fmt.Errorf("failed to write calibrated image: %w", err)
	}

	ashPath := ""
	if params.ConvertToAsh {
		ashPath = filepath.Join(outputDir, imageBase+"_Ash.nii")
		p.log.Info().Str("file", ashPath).Msg("writing ash density image")
		if err := imageio.WriteVolume(calibration.K2HPO4ToAsh(calibrated), ashPath); err != nil {
			return fmt.Errorf("failed to write ash density image: %w", err)
		}
	}

	reportPath := filepath.Join(outputDir, baseName+"_PhanCalibParameters.txt")
	p.log.Info().Str("file", reportPath).Msg("writing calibration report")
	if err := p.writeReport(reportPath, outputPath, rods, fit); err != nil {
		return fmt.Errorf("failed to write calibration report: %w", err)
	}

	tablePath := ""
	if params.MaterialTable {
		tablePath = filepath.Join(outputDir, baseName+"_MatProps.txt")
		p.log.Info().Str("file", tablePath).Msg("writing FE material table")
		if err := p.writeMaterialTable(tablePath, calibrated); err != nil {
			return fmt.Errorf("failed to write material table: %w", err)
		}
	}

	if params.QASlices {
		dir := params.QASlicesDir
		if dir == "" {
			dir = filepath.Join(outputDir, "qa_slices")
		}
		p.log.Info().Str("dir", dir).Msg("saving QA slices")
		viewer := visualization.NewViewer(calibrated)
		if err := viewer.SaveSliceSequence("z", dir); err != nil {
			return fmt.Errorf("failed to save QA slices: %w", err)
		}
	}

	p.result = Result{
		Fit:               fit,
		Rods:              rods,
		Calibrated:        calibrated,
		OutputPath:        outputPath,
		AshOutputPath:     ashPath,
		ReportPath:        reportPath,
		MaterialTablePath: tablePath,
	}
	return nil
}

// writeMaterialTable builds the power-law material table sized from the
// calibrated densities and stores it next to the other outputs. Each
// mg/cc of density is one material ID.
func (p *Pipeline) writeMaterialTable(path string, calibrated *models.Volume) error {
	params := p.params
	maxID := femodel.MaxLabel(calibrated)
	if maxID < 1 {
		return fmt.Errorf("calibrated image has no positive densities")
	}
	table, err := femodel.BuildPowerLawTable(maxID,
		params.ElasticEmax, params.ElasticExponent, params.PoissonsRatio,
		params.PMMAMaterialID, params.PMMAModulus, params.PMMAPoissonsRatio)
	if err != nil {
		return err
	}
	return table.WriteFile(path)
}

// outputNames derives the output directory, the report base name and
// the image output base name from the input path and format. NIFTI
// inputs get a "_PC" marker on image outputs (pre-calibrated source);
// the report keeps the plain base either way.
func (p *Pipeline) outputNames(format imageio.Format) (string, string, string) {
	imagePath := p.params.ImagePath
	base := filepath.Base(strings.TrimSuffix(imagePath, string(filepath.Separator)))
	imageBase := base
	if format == imageio.FormatNIFTI {
		base = strings.TrimSuffix(base, ".gz")
		base = strings.TrimSuffix(base, filepath.Ext(base))
		imageBase = base + "_PC"
	}
	dir := p.params.OutputDir
	if dir == "" {
		dir = filepath.Dir(imagePath)
	}
	return dir, base, imageBase
}

func (p *Pipeline) writeReport(reportPath, outputPath string, rods []models.PhantomRod, fit *calibration.Fit) error {
	params := p.params
	hu := make([]float64, len(rods))
	for i, rod := range rods {
		hu[i] = rod.MeanHU
	}

	report := &calibration.Report{}
	report.Add("ID", strings.TrimSuffix(filepath.Base(reportPath), "_PhanCalibParameters.txt"))
	report.Add("Output File", filepath.Base(outputPath))
	report.Add("Date Created", time.Now().Format("2006-01-02"))
	report.Add("Image Directory", filepath.Dir(params.ImagePath))
	report.Add("Image", filepath.Base(params.ImagePath))
	report.Add("Mask Directory", filepath.Dir(params.MaskPath))
	report.Add("Mask", filepath.Base(params.MaskPath))
	report.AddFloats("Phantom H2O Densities", params.H2ODensities)
	report.AddFloats("Phantom K2HPO4 Densities", params.K2HPO4Densities)
	report.AddFloats("Phantom Density Rod HU", hu)
	report.AddFit(fit)
	return report.WriteFile(reportPath)
}

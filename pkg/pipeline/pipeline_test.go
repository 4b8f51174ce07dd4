package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"bonedensity/internal/models"
	"bonedensity/pkg/calibration"
	"bonedensity/pkg/imageio"
)

var rodIntensities = [5]float64{-20, 10, 120, 300, 700}

// writePhantomInputs stores a synthetic subject image and rod mask as
// NIFTI files in dir. Each rod occupies one z-plane and carries a
// distinct uniform intensity.
func writePhantomInputs(t *testing.T, dir string) (string, string) {
	t.Helper()
	img := models.NewVolume(10, 2, 5)
	mask := models.NewVolume(10, 2, 5)
	for label := 1; label <= 5; label++ {
		z := label - 1
		for y := 0; y < 2; y++ {
			for x := 0; x < 4; x++ {
				mask.Set(x, y, z, float64(label))
				img.Set(x, y, z, rodIntensities[label-1])
			}
		}
	}

	imagePath := filepath.Join(dir, "subject.nii")
	maskPath := filepath.Join(dir, "subject_mask.nii")
	if err := imageio.WriteVolume(img, imagePath); err != nil {
		t.Fatalf("failed to write image fixture: %v", err)
	}
	if err := imageio.WriteVolume(mask, maskPath); err != nil {
		t.Fatalf("failed to write mask fixture: %v", err)
	}
	return imagePath, maskPath
}

// TestPipelineRun verifies a full run over NIFTI inputs: rod
// measurement, fit, calibrated output, ash output and report.
func TestPipelineRun(t *testing.T) {
	dir := t.TempDir()
	imagePath, maskPath := writePhantomInputs(t, dir)
	outputDir := filepath.Join(dir, "out")

	run := New(&Params{
		ImagePath:       imagePath,
		MaskPath:        maskPath,
		OutputDir:       outputDir,
		H2ODensities:    calibration.DefaultH2ODensities,
		K2HPO4Densities: calibration.DefaultK2HPO4Densities,
		NumWorkers:      2,
		ConvertToAsh:    true,
	}, zerolog.Nop())
	if err := run.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	result := run.Result()

	if len(result.Rods) != calibration.NumRods {
		t.Fatalf("Expected %d rods, got %d", calibration.NumRods, len(result.Rods))
	}
	hu := make([]float64, len(result.Rods))
	for i, rod := range result.Rods {
		hu[i] = rod.MeanHU
		if math.Abs(rod.MeanHU-rodIntensities[i]) > 1e-6 {
			t.Errorf("Rod %d: expected mean HU %g, got %g", rod.Label, rodIntensities[i], rod.MeanHU)
		}
	}

	want, err := calibration.NewFit(calibration.DefaultH2ODensities, calibration.DefaultK2HPO4Densities, hu)
	if err != nil {
		t.Fatalf("reference fit failed: %v", err)
	}
	if math.Abs(result.Fit.Slope-want.Slope) > 1e-12 || math.Abs(result.Fit.Intercept-want.Intercept) > 1e-12 {
		t.Errorf("Fit (%g, %g) does not match reference (%g, %g)",
			result.Fit.Slope, result.Fit.Intercept, want.Slope, want.Intercept)
	}

	if filepath.Base(result.OutputPath) != "subject_PC_K2HPO4.nii" {
		t.Errorf("Unexpected output name %s", result.OutputPath)
	}
	calibrated, _, err := imageio.ReadVolume(result.OutputPath)
	if err != nil {
		t.Fatalf("failed to read calibrated output: %v", err)
	}
	wantValue := result.Fit.Slope*rodIntensities[4] + result.Fit.Intercept
	if math.Abs(calibrated.At(0, 0, 4)-wantValue) > 1e-2 {
		t.Errorf("Calibrated rod voxel: expected %g, got %g", wantValue, calibrated.At(0, 0, 4))
	}

	if filepath.Base(result.AshOutputPath) != "subject_PC_Ash.nii" {
		t.Errorf("Unexpected ash output name %s", result.AshOutputPath)
	}
	if _, err := os.Stat(result.AshOutputPath); err != nil {
		t.Errorf("Ash output missing: %v", err)
	}

	if filepath.Base(result.ReportPath) != "subject_PhanCalibParameters.txt" {
		t.Errorf("Unexpected report name %s", result.ReportPath)
	}

	report, err := os.ReadFile(result.ReportPath)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	for _, key := range []string{"Calibration Slope", "Calibration Y-Intercept", "Sigma_CT", "Beta_CT", "Phantom Density Rod HU"} {
		if !strings.Contains(string(report), key) {
			t.Errorf("Report is missing entry %q", key)
		}
	}
}

// TestPipelineDensityFloorAndQASlices verifies the optional floor and
// slice export stages.
func TestPipelineDensityFloorAndQASlices(t *testing.T) {
	dir := t.TempDir()
	imagePath, maskPath := writePhantomInputs(t, dir)
	outputDir := filepath.Join(dir, "out")
	qaDir := filepath.Join(dir, "qa")

	run := New(&Params{
		ImagePath:       imagePath,
		MaskPath:        maskPath,
		OutputDir:       outputDir,
		H2ODensities:    calibration.DefaultH2ODensities,
		K2HPO4Densities: calibration.DefaultK2HPO4Densities,
		DensityFloor:    true,
		FloorValue:      0.01,
		QASlices:        true,
		QASlicesDir:     qaDir,
	}, zerolog.Nop())
	if err := run.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, v := range run.Result().Calibrated.Data {
		if v < 0.01 {
			t.Fatalf("Floor not applied: found value %g", v)
		}
	}
	if _, err := os.Stat(filepath.Join(qaDir, "z_0000.png")); err != nil {
		t.Errorf("QA slice missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(qaDir, "z_0004.png")); err != nil {
		t.Errorf("QA slice missing: %v", err)
	}
}

// TestPipelineMaterialTable verifies the FE material table stage sizes
// the table from the calibrated densities and includes the PMMA entry.
func TestPipelineMaterialTable(t *testing.T) {
	dir := t.TempDir()
	imagePath, maskPath := writePhantomInputs(t, dir)
	outputDir := filepath.Join(dir, "out")

	run := New(&Params{
		ImagePath:       imagePath,
		MaskPath:        maskPath,
		OutputDir:       outputDir,
		H2ODensities:    calibration.DefaultH2ODensities,
		K2HPO4Densities: calibration.DefaultK2HPO4Densities,

		MaterialTable:     true,
		PoissonsRatio:     0.3,
		ElasticEmax:       6850,
		ElasticExponent:   1.49,
		PMMAMaterialID:    2,
		PMMAModulus:       2500,
		PMMAPoissonsRatio: 0.3,
	}, zerolog.Nop())
	if err := run.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	result := run.Result()

	if filepath.Base(result.MaterialTablePath) != "subject_MatProps.txt" {
		t.Fatalf("Unexpected material table name %s", result.MaterialTablePath)
	}
	data, err := os.ReadFile(result.MaterialTablePath)
	if err != nil {
		t.Fatalf("failed to read material table: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "ID\tYoungsModulus\tPoissonsRatio\tName" {
		t.Errorf("Unexpected table header %q", lines[0])
	}
	if !strings.Contains(string(data), "PMMA") {
		t.Error("Material table is missing the PMMA entry")
	}
	// One row per density bin up to the calibrated maximum, plus header.
	maxDensity := result.Fit.Slope*rodIntensities[4] + result.Fit.Intercept
	if want := int(math.Round(maxDensity)) + 1; len(lines) != want {
		t.Errorf("Expected %d table lines, got %d", want, len(lines))
	}
}

// TestPipelineGridMismatch verifies that an image and mask with
// different dimensions abort the run.
func TestPipelineGridMismatch(t *testing.T) {
	dir := t.TempDir()
	imagePath, _ := writePhantomInputs(t, dir)

	maskPath := filepath.Join(dir, "bad_mask.nii")
	if err := imageio.WriteVolume(models.NewVolume(4, 4, 4), maskPath); err != nil {
		t.Fatalf("failed to write mask fixture: %v", err)
	}

	run := New(&Params{
		ImagePath:       imagePath,
		MaskPath:        maskPath,
		OutputDir:       filepath.Join(dir, "out"),
		H2ODensities:    calibration.DefaultH2ODensities,
		K2HPO4Densities: calibration.DefaultK2HPO4Densities,
	}, zerolog.Nop())
	if err := run.Run(); err == nil {
		t.Fatal("Expected an error for mismatched image and mask grids")
	}
}

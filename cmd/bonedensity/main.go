package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"bonedensity/internal/logger"
	"bonedensity/pkg/config"
	"bonedensity/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	imagePath := flag.String("image", "", "DICOM directory or *.nii subject image")
	maskPath := flag.String("mask", "", "DICOM directory or *.nii labeled mask of the calibration rods")
	outputDir := flag.String("output", "", "Output directory (default: directory of the input image)")
	configPath := flag.String("config", "bonedensity.yaml", "YAML configuration file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	ash := flag.Bool("ash", false, "Also write an ash-density image")
	floor := flag.Bool("floor", false, "Apply the configured density floor before writing")
	materials := flag.Bool("materials", false, "Also write an FE material table derived from the calibrated image")
	workers := flag.Int("workers", 0, "Worker goroutines for the voxel transform (0: use config)")
	qaSlices := flag.Bool("qa-slices", false, "Save axial QA slices of the calibrated volume")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	start := time.Now()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *imagePath == "" || *maskPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewConsole(os.Stderr, start, *verbose || cfg.Output.Verbose)
	log.Info().Msg("phantom-based density calibration")

	numWorkers := cfg.Processing.NumWorkers
	if *workers > 0 {
		numWorkers = *workers
	}

	params := &pipeline.Params{
		ImagePath:       *imagePath,
		MaskPath:        *maskPath,
		OutputDir:       *outputDir,
		H2ODensities:    cfg.Phantom.H2ODensities,
		K2HPO4Densities: cfg.Phantom.K2HPO4Densities,
		NumWorkers:      numWorkers,
		ConvertToAsh:    *ash,
		DensityFloor:    *floor || cfg.Processing.DensityFloor,
		FloorValue:      cfg.Processing.FloorValue,
		QASlices:        *qaSlices || cfg.Output.QASlices,
		QASlicesDir:     cfg.Output.QASlicesDir,

		MaterialTable:     *materials,
		PoissonsRatio:     cfg.FiniteElement.PoissonsRatio,
		ElasticEmax:       cfg.FiniteElement.ElasticEmax,
		ElasticExponent:   cfg.FiniteElement.ElasticExponent,
		PMMAMaterialID:    cfg.FiniteElement.PMMAMaterialID,
		PMMAModulus:       cfg.FiniteElement.PMMAModulus,
		PMMAPoissonsRatio: cfg.FiniteElement.PMMAPoissonsRatio,
	}

	run := pipeline.New(params, log)
	if err := run.Run(); err != nil {
		log.Fatal().Err(err).Msg("calibration failed")
	}

	result := run.Result()
	log.Info().
		Float64("slope", result.Fit.Slope).
		Float64("intercept", result.Fit.Intercept).
		Str("output", result.OutputPath).
		Str("report", result.ReportPath).
		Dur("total", time.Since(start)).
		Msg("calibration complete")
}

package calibration

import (
	"runtime"
	"sync"

	"bonedensity/internal/models"
)

// Apply maps every voxel value v of the image to Slope*v + Intercept,
// producing a new volume of calibrated densities with the same
// dimensions and geometry. No clamping is performed; negative or
// implausible densities pass through unchanged and are left to
// downstream consumers.
//
// Voxels are independent, so the transform is chunked across workers.
// A workers value below 1 uses all available CPUs.
func (f *Fit) Apply(img *models.Volume, workers int) *models.Volume {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	out := img.EmptyLike()

	n := len(img.Data)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i, v := range img.Data {
			out.Data[i] = f.Slope*v + f.Intercept
		}
		return out
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				out.Data[i] = f.Slope*img.Data[i] + f.Intercept
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

// Invert recovers the original intensity for a calibrated value,
// (v - Intercept) / Slope. Useful for audit checks; Slope is non-zero
// for any Fit constructed through NewFit.
func (f *Fit) Invert(value float64) float64 {
	return (value - f.Intercept) / f.Slope
}

package femodel

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/floats"

	"bonedensity/internal/models"
)

// densityBinStep converts a material ID to density in g/cc: each ID is
// one 0.001 g/cc bin.
const densityBinStep = 0.001

// Material is a linear isotropic material entry.
type Material struct {
	Name          string
	YoungsModulus float64
	PoissonsRatio float64
}

// MaterialTable maps element material IDs to linear isotropic
// materials for FE model generation.
type MaterialTable struct {
	materials map[int]Material
	maxID     int
}

// BuildPowerLawTable derives a bone material table from the power-law
// density-modulus relationship E = emax * density^exponent, density in
// g/cc and E in MPa. IDs 1..maxID each represent one densityBinStep
// bin. The PMMA end-cap material is registered under pmmaID, replacing
// the bone entry for that bin.
func BuildPowerLawTable(maxID int, emax, exponent, nu float64, pmmaID int, pmmaE, pmmaNu float64) (*MaterialTable, error) {
	if maxID < 1 {
		return nil, fmt.Errorf("material table needs at least one density bin, got maxID=%d", maxID)
	}
	t := &MaterialTable{
		materials: make(map[int]Material, maxID+1),
		maxID:     maxID,
	}
	for id := 1; id <= maxID; id++ {
		density := float64(id) * densityBinStep
		t.materials[id] = Material{
			Name:          "Bone",
			YoungsModulus: emax * math.Pow(density, exponent),
			PoissonsRatio: nu,
		}
	}
	t.materials[pmmaID] = Material{
		Name:          "PMMA",
		YoungsModulus: pmmaE,
		PoissonsRatio: pmmaNu,
	}
	if pmmaID > t.maxID {
		t.maxID = pmmaID
	}
	return t, nil
}

// Material looks up the material for an ID.
func (t *MaterialTable) Material(id int) (Material, bool) {
	m, ok := t.materials[id]
	return m, ok
}

// MaxID returns the highest registered material ID.
func (t *MaterialTable) MaxID() int {
	return t.maxID
}

// Len returns the number of registered materials.
func (t *MaterialTable) Len() int {
	return len(t.materials)
}

// WriteFile writes the table as tab-separated rows ordered by ID, one
// material per line, for consumption by the FE mesh generator.
func (t *MaterialTable) WriteFile(path string) error {
	var b strings.Builder
	b.WriteString("ID\tYoungsModulus\tPoissonsRatio\tName\n")
	for id := 1; id <= t.maxID; id++ {
		m, ok := t.materials[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%d\t%g\t%g\t%s\n", id, m.YoungsModulus, m.PoissonsRatio, m.Name)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("error writing material table file: %w", err)
	}
	return nil
}

// MaxLabel returns the largest voxel value of a segmented image,
// rounded to the nearest integer. Used to size the material table from
// the image the mesh will be generated from.
func MaxLabel(vol *models.Volume) int {
	if len(vol.Data) == 0 {
		return 0
	}
	return int(math.Round(floats.Max(vol.Data)))
}

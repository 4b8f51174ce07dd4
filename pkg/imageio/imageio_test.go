package imageio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bonedensity/internal/models"
)

// TestDetectFormat verifies path classification: directories are DICOM
// series, NIFTI extensions are NIFTI, anything else is rejected.
func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.nii", "b.nifti", "c.nii.gz", "d.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write fixture: %v", err)
		}
	}

	cases := []struct {
		path string
		want Format
	}{
		{dir, FormatDICOM},
		{filepath.Join(dir, "a.nii"), FormatNIFTI},
		{filepath.Join(dir, "b.nifti"), FormatNIFTI},
		{filepath.Join(dir, "c.nii.gz"), FormatNIFTI},
	}
	for _, tc := range cases {
		format, err := DetectFormat(tc.path)
		if err != nil {
			t.Errorf("DetectFormat(%s) failed: %v", tc.path, err)
			continue
		}
		if format != tc.want {
			t.Errorf("DetectFormat(%s) = %d, want %d", tc.path, format, tc.want)
		}
	}
}

// TestDetectFormatUnsupported verifies that an unrecognized extension
// yields the typed unsupported-format error.
func TestDetectFormatUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := DetectFormat(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("DetectFormat: expected ErrUnsupportedFormat, got %v", err)
	}
	if _, _, err := ReadVolume(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ReadVolume: expected ErrUnsupportedFormat, got %v", err)
	}
}

// TestReadVolumeRoundtrip verifies write-then-read dispatch through the
// NIFTI handler.
func TestReadVolumeRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.nii")
	vol := models.NewVolume(3, 2, 2)
	for i := range vol.Data {
		vol.Data[i] = float64(i)
	}

	if err := WriteVolume(vol, path); err != nil {
		t.Fatalf("WriteVolume failed: %v", err)
	}
	got, format, err := ReadVolume(path)
	if err != nil {
		t.Fatalf("ReadVolume failed: %v", err)
	}
	if format != FormatNIFTI {
		t.Errorf("Expected NIFTI format, got %d", format)
	}
	if !got.SameGrid(vol) {
		t.Errorf("Grid %dx%dx%d does not match %dx%dx%d",
			got.Width, got.Height, got.Depth, vol.Width, vol.Height, vol.Depth)
	}
}

// Package nifti reads and writes NIFTI-1 volumes. Only the single-file
// ".nii" layout (magic "n+1") is supported, optionally gzip-compressed.
// The header layout follows the official nifti1.h definition.
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"bonedensity/internal/models"
)

// NIFTI-1 datatype codes for the voxel payloads we can decode.
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
	DTUint16  = 512
)

const (
	headerSize    = 348
	defaultOffset = 352
)

// Header is the 348-byte NIFTI-1 file header.
type Header struct {
	SizeOfHdr          int32
	UnusedDataType     [10]int8
	UnusedDbName       [18]int8
	UnusedExtents      int32
	UnusedSessionError int16
	UnusedRegular      int8
	DimInfo            int8

	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	DataType      int16
	BitPix        int16
	SliceStart    int16
	PixDim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     int8
	XYZTUnits     int8
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	UnusedGlmax   int32
	UnusedGlmin   int32

	Descrip [80]int8
	AuxFile [24]int8

	QFormCode int16
	SFormCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]int8

	Magic [4]int8
}

var magicN1 = [4]int8{'n', '+', '1', 0}

// Read loads a NIFTI-1 file into a Volume. Voxel values are promoted to
// float64 and the header's scl_slope/scl_inter scaling is applied when
// set. Files ending in ".gz" are decompressed transparently.
func Read(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening NIFTI file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading NIFTI file: %w", err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("file too short for a NIFTI-1 header: %d bytes", len(raw))
	}

	hdr, order, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("invalid NIFTI dimensions %dx%dx%d", nx, ny, nz)
	}

	offset := int(hdr.VoxOffset)
	if offset < headerSize {
		offset = defaultOffset
	}
	nVox := nx * ny * nz
	byPer := int(hdr.BitPix) / 8
	if offset+nVox*byPer > len(raw) {
		return nil, fmt.Errorf("NIFTI voxel payload truncated: need %d bytes at offset %d, have %d",
			nVox*byPer, offset, len(raw))
	}

	data, err := decodeVoxels(raw[offset:offset+nVox*byPer], int(hdr.DataType), nVox, order)
	if err != nil {
		return nil, err
	}

	// scl_slope of zero means "no scaling" per the standard.
	if hdr.SclSlope != 0 && !(hdr.SclSlope == 1 && hdr.SclInter == 0) {
		slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
		for i := range data {
			data[i] = slope*data[i] + inter
		}
	}

	vol := &models.Volume{
		Data:   data,
		Width:  nx,
		Height: ny,
		Depth:  nz,
		Spacing: [3]float64{
			float64(hdr.PixDim[1]),
			float64(hdr.PixDim[2]),
			float64(hdr.PixDim[3]),
		},
	}
	if hdr.SFormCode > 0 {
		vol.Origin = [3]float64{float64(hdr.SRowX[3]), float64(hdr.SRowY[3]), float64(hdr.SRowZ[3])}
	} else {
		vol.Origin = [3]float64{float64(hdr.QOffsetX), float64(hdr.QOffsetY), float64(hdr.QOffsetZ)}
	}
	return vol, nil
}

// parseHeader decodes the header, inferring byte order from dim[0],
// which must land in [1, 7] under the correct order.
func parseHeader(raw []byte) (*Header, binary.ByteOrder, error) {
	hdr := &Header{}
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, hdr); err != nil {
		return nil, nil, fmt.Errorf("error decoding NIFTI header: %w", err)
	}
	if hdr.Dim[0] < 1 || hdr.Dim[0] > 7 {
		order = binary.BigEndian
		*hdr = Header{}
		if err := binary.Read(bytes.NewReader(raw), order, hdr); err != nil {
			return nil, nil, fmt.Errorf("error decoding NIFTI header: %w", err)
		}
		if hdr.Dim[0] < 1 || hdr.Dim[0] > 7 {
			return nil, nil, fmt.Errorf("cannot infer NIFTI byte order: dim[0]=%d", hdr.Dim[0])
		}
	}
	if hdr.SizeOfHdr != headerSize {
		return nil, nil, fmt.Errorf("invalid NIFTI header size %d, want %d", hdr.SizeOfHdr, headerSize)
	}
	if hdr.Magic != magicN1 {
		return nil, nil, fmt.Errorf("unsupported NIFTI magic %q: header and data must share one file", magicString(hdr.Magic))
	}
	return hdr, order, nil
}

func magicString(m [4]int8) string {
	b := make([]byte, 0, 4)
	for _, c := range m {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}

func decodeVoxels(raw []byte, dataType, nVox int, order binary.ByteOrder) ([]float64, error) {
	data := make([]float64, nVox)
	switch dataType {
	case DTUint8:
		for i := 0; i < nVox; i++ {
			data[i] = float64(raw[i])
		}
	case DTInt16:
		for i := 0; i < nVox; i++ {
			data[i] = float64(int16(order.Uint16(raw[i*2:])))
		}
	case DTUint16:
		for i := 0; i < nVox; i++ {
			data[i] = float64(order.Uint16(raw[i*2:]))
		}
	case DTInt32:
		for i := 0; i < nVox; i++ {
			data[i] = float64(int32(order.Uint32(raw[i*4:])))
		}
	case DTFloat32:
		for i := 0; i < nVox; i++ {
			data[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
	case DTFloat64:
		for i := 0; i < nVox; i++ {
			data[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
	default:
		return nil, fmt.Errorf("unsupported NIFTI datatype code %d", dataType)
	}
	return data, nil
}

// Write stores the volume as a little-endian float32 single-file NIFTI.
// Files ending in ".gz" are gzip-compressed. Spacing and origin are
// recorded through pixdim and an axis-aligned sform.
func Write(vol *models.Volume, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating NIFTI file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	hdr := newFloat32Header(vol)
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("error writing NIFTI header: %w", err)
	}
	// Four zero bytes: no header extensions.
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return fmt.Errorf("error writing NIFTI extension flag: %w", err)
	}

	buf := make([]byte, 4*len(vol.Data))
	for i, v := range vol.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("error writing NIFTI voxel data: %w", err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("error finishing gzip stream: %w", err)
		}
	}
	return nil
}

func newFloat32Header(vol *models.Volume) *Header {
	hdr := &Header{
		SizeOfHdr: headerSize,
		DataType:  DTFloat32,
		BitPix:    32,
		VoxOffset: defaultOffset,
		SclSlope:  1,
		SFormCode: 1,
		XYZTUnits: 2, // NIFTI_UNITS_MM
		Magic:     magicN1,
	}
	hdr.Dim[0] = 3
	hdr.Dim[1] = int16(vol.Width)
	hdr.Dim[2] = int16(vol.Height)
	hdr.Dim[3] = int16(vol.Depth)
	for i := 4; i < 8; i++ {
		hdr.Dim[i] = 1
	}
	hdr.PixDim[0] = 1
	hdr.PixDim[1] = float32(vol.Spacing[0])
	hdr.PixDim[2] = float32(vol.Spacing[1])
	hdr.PixDim[3] = float32(vol.Spacing[2])

	hdr.SRowX = [4]float32{float32(vol.Spacing[0]), 0, 0, float32(vol.Origin[0])}
	hdr.SRowY = [4]float32{0, float32(vol.Spacing[1]), 0, float32(vol.Origin[1])}
	hdr.SRowZ = [4]float32{0, 0, float32(vol.Spacing[2]), float32(vol.Origin[2])}

	hdr.QOffsetX = float32(vol.Origin[0])
	hdr.QOffsetY = float32(vol.Origin[1])
	hdr.QOffsetZ = float32(vol.Origin[2])

	copy(hdr.Descrip[:], toInt8("bonedensity calibrated volume"))
	return hdr
}

func toInt8(s string) []int8 {
	out := make([]int8, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = int8(s[i])
	}
	return out
}

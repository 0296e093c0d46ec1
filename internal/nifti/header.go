// Package nifti reads and writes single-file NIfTI-1 images (.nii and .nii.gz)
// and resamples them between voxel grids.
package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	kwnifti "github.com/KyungWonPark/nifti"
)

// Header is the 348 byte NIfTI-1 header. It is read and written by this
// package in either byte order.
type Header = kwnifti.Nifti1Header

// NIFTI datatype codes
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
	DTInt64   int16 = 1024
	DTUint64  int16 = 1280
)

// NIFTI_XFORM_* codes
const (
	XformUnknown     int16 = 0
	XformScannerAnat int16 = 1
)

const (
	headerSize    = 348
	dataOffset    = 352
	extensionSize = 4
)

var singleFileMagic = [4]byte{'n', '+', '1', 0}

// bitsPerVoxel returns the storage size of a datatype code, 0 when unsupported.
func bitsPerVoxel(dataType int16) int {
	switch dataType {
	case DTUint8, DTInt8:
		return 8
	case DTInt16, DTUint16:
		return 16
	case DTInt32, DTUint32, DTFloat32:
		return 32
	case DTFloat64, DTInt64, DTUint64:
		return 64
	}
	return 0
}

// readHeader decodes a header and returns the byte order it was stored in.
func readHeader(r io.Reader) (Header, binary.ByteOrder, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, nil, fmt.Errorf("nifti: read header: %w", err)
	}

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		var h Header
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return Header{}, nil, fmt.Errorf("nifti: decode header: %w", err)
		}
		if h.Dim[0] >= 1 && h.Dim[0] <= 7 {
			if err := validateHeader(h); err != nil {
				return Header{}, nil, err
			}
			return h, order, nil
		}
	}

	return Header{}, nil, fmt.Errorf("nifti: cannot infer byte order, dim[0] not in range [1, 7]")
}

func validateHeader(h Header) error {
	switch {
	case h.SizeofHdr != headerSize:
		return fmt.Errorf("nifti: invalid header size %d", h.SizeofHdr)
	case h.Magic != singleFileMagic:
		return fmt.Errorf("nifti: invalid file magic, header and data must be stored in the same file")
	case bitsPerVoxel(h.Datatype) == 0:
		return fmt.Errorf("nifti: unsupported datatype %d", h.Datatype)
	case h.VoxOffset < dataOffset:
		return fmt.Errorf("nifti: invalid vox_offset %g", h.VoxOffset)
	}

	for i := 1; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] < 1 {
			return fmt.Errorf("nifti: invalid dim[%d] = %d", i, h.Dim[i])
		}
	}

	return nil
}

// dataSize returns the voxel count and the byte size of the data block.
func dataSize(h Header) (nvox, size int64, err error) {
	bytesPer := int64(bitsPerVoxel(h.Datatype) / 8)
	if bytesPer == 0 {
		return 0, 0, fmt.Errorf("nifti: unsupported datatype %d", h.Datatype)
	}

	nvox = 1
	for i := 1; i <= int(h.Dim[0]); i++ {
		d := int64(h.Dim[i])
		if d < 1 || nvox > math.MaxInt/bytesPer/d {
			return 0, 0, fmt.Errorf("nifti: dim %v overflows the addressable data size", h.Dim)
		}
		nvox *= d
	}
	return nvox, nvox * bytesPer, nil
}

package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/KyungWonPark/GroupICA/internal/diag"
	"github.com/klauspost/pgzip"
)

// Load reads a .nii or .nii.gz file. Non-fatal oddities of the file are
// reported to c.
func Load(path string, c *diag.Collector) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nifti: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if isGzip(path) {
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("nifti: %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	v, err := Read(r, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Read decodes a single-file NIfTI-1 stream.
func Read(r io.Reader, c *diag.Collector) (*Volume, error) {
	h, order, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	ndim := int(h.Dim[0])
	for i := 5; i <= ndim; i++ {
		if h.Dim[i] > 1 {
			return nil, fmt.Errorf("nifti: %d dimensional images are not supported", ndim)
		}
	}

	shape := [4]int{1, 1, 1, 1}
	for i := 1; i <= ndim && i <= 4; i++ {
		shape[i-1] = int(h.Dim[i])
	}

	// skip the extension flag, extensions and any padding up to the data
	if _, err := io.CopyN(io.Discard, r, int64(h.VoxOffset)-headerSize); err != nil {
		return nil, fmt.Errorf("nifti: seek to data: %w", err)
	}

	nvox, size, err := dataSize(h)
	if err != nil {
		return nil, err
	}
	// the data block is read up to the size the header claims, never
	// allocated from the header alone
	raw, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return nil, fmt.Errorf("nifti: read %d voxels: %w", nvox, err)
	}
	if int64(len(raw)) != size {
		return nil, fmt.Errorf("nifti: truncated data, %d of %d bytes", len(raw), size)
	}

	data := decode(raw, h.Datatype, order, int(nvox))
	dataType := h.Datatype

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope != 0 && !math.IsNaN(slope) && (slope != 1 || inter != 0) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
		if dataType != DTFloat64 {
			dataType = DTFloat32
		}
	}

	return &Volume{
		Shape:    shape,
		Affine:   affineFromHeader(h, c),
		Data:     data,
		DataType: dataType,
		Header:   h,
	}, nil
}

func decode(raw []byte, dataType int16, order binary.ByteOrder, nvox int) []float64 {
	data := make([]float64, nvox)
	for i := 0; i < nvox; i++ {
		switch dataType {
		case DTUint8:
			data[i] = float64(raw[i])
		case DTInt8:
			data[i] = float64(int8(raw[i]))
		case DTInt16:
			data[i] = float64(int16(order.Uint16(raw[2*i:])))
		case DTUint16:
			data[i] = float64(order.Uint16(raw[2*i:]))
		case DTInt32:
			data[i] = float64(int32(order.Uint32(raw[4*i:])))
		case DTUint32:
			data[i] = float64(order.Uint32(raw[4*i:]))
		case DTFloat32:
			data[i] = float64(math.Float32frombits(order.Uint32(raw[4*i:])))
		case DTInt64:
			data[i] = float64(int64(order.Uint64(raw[8*i:])))
		case DTUint64:
			data[i] = float64(order.Uint64(raw[8*i:]))
		case DTFloat64:
			data[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
		}
	}
	return data
}

// Save writes v to path, gzip compressed when path ends in .gz.
func Save(v *Volume, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("nifti: %w", err)
	}

	if isGzip(path) {
		zw := pgzip.NewWriter(f)
		if err := Write(zw, v); err != nil {
			zw.Close()
			f.Close()
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := zw.Close(); err != nil {
			f.Close()
			return fmt.Errorf("nifti: %s: %w", path, err)
		}
		return f.Close()
	}

	w := bufio.NewWriter(f)
	if err := Write(w, v); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("nifti: %s: %w", path, err)
	}
	return f.Close()
}

// Write encodes v as a little endian single-file NIfTI-1 stream.
func Write(w io.Writer, v *Volume) error {
	if err := v.validate(); err != nil {
		return err
	}

	dataType := v.DataType
	switch dataType {
	case DTUint8, DTInt16, DTInt32, DTFloat32, DTFloat64:
	default:
		dataType = DTFloat32
	}

	h := outputHeader(v, dataType)
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("nifti: write header: %w", err)
	}
	if _, err := w.Write(make([]byte, extensionSize)); err != nil {
		return fmt.Errorf("nifti: write extension flag: %w", err)
	}

	size := bitsPerVoxel(dataType) / 8
	buf := make([]byte, len(v.Data)*size)
	for i, val := range v.Data {
		switch dataType {
		case DTUint8:
			buf[i] = uint8(math.Round(val))
		case DTInt16:
			binary.LittleEndian.PutUint16(buf[2*i:], uint16(int16(math.Round(val))))
		case DTInt32:
			binary.LittleEndian.PutUint32(buf[4*i:], uint32(int32(math.Round(val))))
		case DTFloat32:
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(val)))
		case DTFloat64:
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(val))
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("nifti: write data: %w", err)
	}
	return nil
}

// outputHeader starts from the source header (keeping descrip, units, intent
// and timing) and overwrites geometry and storage fields.
func outputHeader(v *Volume, dataType int16) Header {
	h := v.Header
	if h.SizeofHdr != headerSize {
		h = Header{XyztUnits: 2 | 8, Descrip: h.Descrip} // mm, seconds
		h.Pixdim[4] = 1
	}

	h.SizeofHdr = headerSize
	h.Magic = singleFileMagic
	h.Dim = [8]int16{3, int16(v.Shape[0]), int16(v.Shape[1]), int16(v.Shape[2]), 1, 1, 1, 1}
	if v.Shape[3] > 1 {
		h.Dim[0] = 4
		h.Dim[4] = int16(v.Shape[3])
	}

	h.Datatype = dataType
	h.Bitpix = int16(bitsPerVoxel(dataType))
	h.VoxOffset = dataOffset
	h.SclSlope = 1
	h.SclInter = 0

	zooms := v.Affine.Zooms()
	h.Pixdim[0] = 1
	h.Pixdim[1] = float32(zooms[0])
	h.Pixdim[2] = float32(zooms[1])
	h.Pixdim[3] = float32(zooms[2])

	a := v.Affine
	h.SrowX = [4]float32{float32(a[0][0]), float32(a[0][1]), float32(a[0][2]), float32(a[0][3])}
	h.SrowY = [4]float32{float32(a[1][0]), float32(a[1][1]), float32(a[1][2]), float32(a[1][3])}
	h.SrowZ = [4]float32{float32(a[2][0]), float32(a[2][1]), float32(a[2][2]), float32(a[2][3])}
	if h.SformCode <= 0 {
		h.SformCode = XformScannerAnat
	}

	// the affine may have changed, a stale qform would contradict the sform
	h.QformCode = XformUnknown
	h.QuaternB, h.QuaternC, h.QuaternD = 0, 0, 0
	h.QoffsetX, h.QoffsetY, h.QoffsetZ = 0, 0, 0

	return h
}

func isGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

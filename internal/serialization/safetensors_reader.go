package serialization

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/tensor"
)

// ReadSafeTensors loads every tensor of the SafeTensors file at path into
// backend's arena. It returns the tensors by name and the file metadata.
func ReadSafeTensors(path string, backend tensor.Backend) (map[string]*tensor.RawTensor, map[string]string, error) {
	//nolint:gosec // G304: the path is chosen by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer func() { _ = f.Close() }()

	tensors, metadata, err := ReadFrom(f, backend)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "reading %s", path)
	}
	return tensors, metadata, nil
}

// ReadFrom decodes a SafeTensors stream. The file is validated (bounds,
// overlaps, names, checksum) before anything is allocated. Half precision
// tensors are widened to float32.
func ReadFrom(r io.Reader, backend tensor.Backend) (map[string]*tensor.RawTensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header")
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse header")
	}
	metadata := map[string]string{}
	if raw, ok := entries[metadataKey]; ok {
		if err := json.Unmarshal(raw, &metadata); err != nil {
			return nil, nil, errors.Wrap(err, "failed to parse metadata")
		}
		delete(entries, metadataKey)
	}

	metas := make([]TensorMeta, 0, len(entries))
	for name, raw := range entries {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to parse header of %q", name)
		}
		meta, err := toMeta(name, h)
		if err != nil {
			return nil, nil, err
		}
		metas = append(metas, meta)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read tensor data")
	}
	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, nil, err
	}
	if err := ValidateChecksum(data, metadata); err != nil {
		return nil, nil, err
	}

	arena := backend.Arena()
	tensors := make(map[string]*tensor.RawTensor, len(metas))
	for _, m := range metas {
		dtype, _, _ := loadedDType(m.DType)
		t, err := arena.NewRaw(m.Shape, dtype, backend.Device())
		if err != nil {
			for _, done := range tensors {
				done.Release()
			}
			return nil, nil, errors.WithMessagef(err, "allocating %q", m.Name)
		}
		decode(t, data[m.Offset:m.Offset+m.Size], m.DType)
		tensors[m.Name] = t
	}
	klog.V(2).Infof("safetensors: read %d tensors, %d data bytes", len(tensors), len(data))
	return tensors, metadata, nil
}

// toMeta checks a header entry and converts it to a TensorMeta.
func toMeta(name string, h SafeTensorHeader) (TensorMeta, error) {
	_, elemSize, ok := loadedDType(h.DType)
	if !ok {
		return TensorMeta{}, &ValidationError{Kind: ErrUnsupportedDType, Tensor: name, Details: h.DType}
	}
	shape := make([]int, len(h.Shape))
	elements := int64(1)
	for i, dim := range h.Shape {
		if dim < 0 || dim > math.MaxInt32 {
			return TensorMeta{}, &ValidationError{Kind: ErrOutOfBounds, Tensor: name, Details: "invalid dimension"}
		}
		shape[i] = int(dim)
		elements *= dim
		if elements > math.MaxInt32 {
			return TensorMeta{}, &ValidationError{Kind: ErrOutOfBounds, Tensor: name, Details: "too many elements"}
		}
	}
	start, end := h.DataOffsets[0], h.DataOffsets[1]
	size := end - start
	if start < 0 || size < 0 {
		return TensorMeta{}, &ValidationError{Kind: ErrNegativeOffset, Tensor: name,
			Details: "data_offsets out of order"}
	}
	if size != elements*int64(elemSize) {
		return TensorMeta{}, &ValidationError{Kind: ErrOutOfBounds, Tensor: name,
			Details: "data_offsets do not match shape and dtype"}
	}
	return TensorMeta{Name: name, DType: h.DType, Shape: shape, Offset: start, Size: size}, nil
}

func decode(dst *tensor.RawTensor, src []byte, dtype string) {
	if dtype != DTypeF16 {
		copy(dst.Data(), src)
		return
	}
	out := dst.AsFloat32()
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(src[2*i:])).Float32()
	}
}

package serialization

import (
	"github.com/born-ml/gradkit/internal/tensor"
)

// SafeTensors dtype strings.
const (
	DTypeF16 = "F16"
	DTypeF32 = "F32"
	DTypeF64 = "F64"
)

// Reserved header keys.
const (
	metadataKey = "__metadata__"

	// ChecksumKey is the metadata entry holding the hex SHA-256 of the data section.
	ChecksumKey = "sha256"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// TensorMeta describes where a tensor lives in the data section.
type TensorMeta struct {
	Name   string // Tensor name (e.g., "accumulator.w")
	DType  string // SafeTensors dtype (e.g., "F32")
	Shape  []int  // Tensor shape
	Offset int64  // Offset in the data section
	Size   int64  // Size in bytes
}

// WriteOptions controls how tensors are encoded.
type WriteOptions struct {
	// HalfPrecision stores float32 tensors as F16. Float64 tensors are unaffected.
	HalfPrecision bool
}

// storedDType returns the dtype string a tensor is written with.
func storedDType(dt tensor.DataType, opts WriteOptions) (string, error) {
	switch dt {
	case tensor.Float32:
		if opts.HalfPrecision {
			return DTypeF16, nil
		}
		return DTypeF32, nil
	case tensor.Float64:
		return DTypeF64, nil
	default:
		return "", &ValidationError{Kind: ErrUnsupportedDType, Details: dt.String()}
	}
}

// loadedDType maps a stored dtype to the in-memory one and its element size on disk.
func loadedDType(s string) (tensor.DataType, int, bool) {
	switch s {
	case DTypeF16:
		return tensor.Float32, 2, true
	case DTypeF32:
		return tensor.Float32, 4, true
	case DTypeF64:
		return tensor.Float64, 8, true
	default:
		return 0, 0, false
	}
}

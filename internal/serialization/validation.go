package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for untrusted files.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateTensorOffsets checks that every tensor lies inside the data
// section and that no two tensors overlap.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Kind:    ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Kind:    ErrNegativeOffset,
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Kind:    ErrOutOfBounds,
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Kind:    ErrOffsetOverlap,
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}

	return nil
}

// ValidateTensorName rejects empty, oversized and path-like names.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Kind: ErrInvalidTensorName, Details: "empty name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Kind:    ErrTensorNameTooLong,
			Tensor:  name[:64] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: "contains '..'"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: "contains path separator"}
	}
	if strings.Contains(name, "\x00") {
		return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: "contains null byte"}
	}
	if name == metadataKey {
		return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: "reserved name"}
	}
	return nil
}

// Package tensor provides the core tensor types, the allocation arena and
// the backend contract for the gradkit runtime.
package tensor

import (
	"unsafe"

	"github.com/gomlx/exceptions"
)

// DType constrains the element types a typed Tensor may hold.
type DType interface {
	~float32 | ~float64
}

// DataType is the runtime element type of a RawTensor.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the number of bytes per element.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	}
	exceptions.Panicf("tensor: unknown data type %d", int(dt))
	return 0
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return "unknown"
}

func inferDataType[T DType](zero T) DataType {
	if unsafe.Sizeof(zero) == 4 {
		return Float32
	}
	return Float64
}

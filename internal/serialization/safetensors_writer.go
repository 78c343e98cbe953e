package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/tensor"
)

// SafeTensorsWriter writes tensors in SafeTensors format to a file.
type SafeTensorsWriter struct {
	file   *os.File
	opts   WriteOptions
	closed bool
}

// NewSafeTensorsWriter creates a new SafeTensors file writer.
func NewSafeTensorsWriter(path string, opts WriteOptions) (*SafeTensorsWriter, error) {
	//nolint:gosec // G304: the path is chosen by the caller
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	return &SafeTensorsWriter{file: file, opts: opts}, nil
}

// WriteSafeTensors writes tensors to a SafeTensors file at path in full precision.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	writer, err := NewSafeTensorsWriter(path, WriteOptions{})
	if err != nil {
		return err
	}
	if err := writer.WriteStateDict(tensors, metadata); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// WriteStateDict writes a state dictionary to the file.
func (w *SafeTensorsWriter) WriteStateDict(stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	if w.closed {
		return errors.New("writer is closed")
	}
	return WriteTo(w.file, stateDict, metadata, w.opts)
}

// Close closes the writer and the underlying file.
func (w *SafeTensorsWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Wrap(w.file.Close(), "closing safetensors file")
}

// WriteTo encodes stateDict as SafeTensors into out.
//
// Tensors are written in alphabetical order by name. The SHA-256 of the
// data section is added to the metadata under ChecksumKey.
func WriteTo(out io.Writer, stateDict map[string]*tensor.RawTensor, metadata map[string]string, opts WriteOptions) error {
	names := slices.Sorted(maps.Keys(stateDict))

	header := make(map[string]any, len(names)+1)
	var data bytes.Buffer
	for _, name := range names {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		raw := stateDict[name]
		if raw == nil || raw.Released() {
			return errors.Errorf("tensor %q has been released", name)
		}
		dtype, err := storedDType(raw.DType(), opts)
		if err != nil {
			return errors.WithMessagef(err, "tensor %q", name)
		}

		start := int64(data.Len())
		encode(&data, raw, dtype)
		shape := make([]int64, len(raw.Shape()))
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{start, int64(data.Len())},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	maps.Copy(meta, metadata)
	sum := ComputeChecksum(data.Bytes())
	meta[ChecksumKey] = hex.EncodeToString(sum[:])
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}
	if err := binary.Write(out, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "failed to write header size")
	}
	if _, err := out.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	if _, err := out.Write(data.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write tensor data")
	}
	klog.V(2).Infof("safetensors: wrote %d tensors, %d data bytes", len(names), data.Len())
	return nil
}

func encode(dst *bytes.Buffer, raw *tensor.RawTensor, dtype string) {
	if dtype != DTypeF16 {
		dst.Write(raw.Data())
		return
	}
	var buf [2]byte
	for _, v := range raw.AsFloat32() {
		binary.LittleEndian.PutUint16(buf[:], float16.Fromfloat32(v).Bits())
		dst.Write(buf[:])
	}
}

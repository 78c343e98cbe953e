// Package serialization reads and writes tensors in the SafeTensors format.
//
// SafeTensors is a flat container used across ML ecosystems:
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON, tensor name -> {dtype, shape, data_offsets}, plus "__metadata__"]
//	  [Tensor data: raw little-endian bytes, in header order]
//
// The package supports:
//   - float32 and float64 tensors, stored as F32 and F64
//   - optional half precision storage (F16), widened back to float32 on load
//   - string metadata, including a SHA-256 checksum of the data section
//   - bounds, overlap and name validation of untrusted files
//
// Loaded tensors are allocated in the backend's arena, so the caller owns
// them and releases them like any other tensor.
//
// Example usage:
//
//	// Save variables
//	err := serialization.WriteSafeTensors("vars.safetensors", state, map[string]string{"run": id})
//
//	// Load them back
//	state, meta, err := serialization.ReadSafeTensors("vars.safetensors", backend)
package serialization

package serialization

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// ComputeChecksum computes the SHA-256 checksum of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares the checksum of data against the hex digest
// stored in metadata. A file without a stored checksum is accepted.
func ValidateChecksum(data []byte, metadata map[string]string) error {
	stored, ok := metadata[ChecksumKey]
	if !ok {
		return nil
	}
	want, err := hex.DecodeString(stored)
	if err != nil || len(want) != sha256.Size {
		return errors.Wrapf(ErrChecksumMismatch, "malformed stored checksum %q", stored)
	}
	sum := ComputeChecksum(data)
	if string(sum[:]) != string(want) {
		return errors.Wrapf(ErrChecksumMismatch, "stored %s, computed %x", stored, sum)
	}
	return nil
}

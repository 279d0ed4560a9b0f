package fingerprint

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
)

// HashBits is the fixed width of a fingerprint: an 8x8 grayscale grid,
// one bit per sample (1 if the sample is >= the grid mean).
const HashBits = 64

// HexLen is the constant length of the rendered fingerprint.
const HexLen = HashBits / 4

// Compute returns the perceptual hash of an image as a 16-character hex
// string. Deterministic: the same pixels always produce the same hash.
func Compute(img image.Image) (string, error) {
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", fmt.Errorf("failed to compute perceptual hash: %w", err)
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b string) (int, error) {
	if len(a) != HexLen || len(b) != HexLen {
		return 0, fmt.Errorf("fingerprint length mismatch: %q vs %q", a, b)
	}
	av, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed fingerprint %q: %w", a, err)
	}
	bv, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed fingerprint %q: %w", b, err)
	}
	return bits.OnesCount64(av ^ bv), nil
}

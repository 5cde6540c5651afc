// Package simrand provides the seeded generators behind every fabricated value
// in the SITA OS demo.
//
// Nothing in this package is cryptographic. SimHash and FullHash produce
// digest-shaped strings so ledgers and receipts look like evidence; they offer
// no collision or preimage resistance and must never guard anything.
package simrand

import (
	"math"
	"strconv"
	"strings"
)

const (
	seedScale  = 12.9898
	indexScale = 78.233
	amplitude  = 43758.5453

	fnvOffset uint32 = 0x811c9dc5
	fnvPrime  uint32 = 0x01000193
)

// hashSalts are appended to the input for the seven extra SimHash rounds of FullHash.
var hashSalts = [...]string{"a", "b", "c", "d", "e", "f", "g"}

// SeededRandom maps (seed, index) to a reproducible value in [0, 1). It is
// frac(sin(seed*12.9898 + index*78.233) * 43758.5453) computed with the
// package's own Sin and explicit roundings, so every platform returns the
// same bits.
func SeededRandom(seed, index int) float64 {
	a := float64(float64(seed) * seedScale)
	b := float64(float64(index) * indexScale)
	v := float64(Sin(a+b) * amplitude)
	f := v - math.Floor(v)
	if !(f >= 0 && f < 1) {
		return 0
	}
	return f
}

// Between maps (seed, index) onto [lo, hi).
func Between(seed, index int, lo, hi float64) float64 {
	return lo + float64(SeededRandom(seed, index)*(hi-lo))
}

// Jitter returns a centred perturbation in [-span/2, span/2).
func Jitter(seed, index int, span float64) float64 {
	return float64((SeededRandom(seed, index) - 0.5) * span)
}

// Pick returns a reproducible index in [0, n). It returns 0 when n <= 0.
func Pick(seed, index, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(float64(SeededRandom(seed, index) * float64(n)))
	if i >= n {
		i = n - 1
	}
	return i
}

// SimHash folds s byte by byte with FNV-1a mixing and renders the 32-bit
// result as 8 lowercase hex characters.
func SimHash(s string) string {
	h := fnvOffset
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	out := strconv.FormatUint(uint64(h), 16)
	if len(out) < 8 {
		out = strings.Repeat("0", 8-len(out)) + out
	}
	return out
}

// FullHash concatenates SimHash(s) with SimHash(s+"a") through SimHash(s+"g")
// into a 64-character hex string that resembles a SHA-256 digest.
func FullHash(s string) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(SimHash(s))
	for _, salt := range hashSalts {
		b.WriteString(SimHash(s + salt))
	}
	return b.String()
}

// ZeroHash is the genesis link of every simulated hash chain.
var ZeroHash = strings.Repeat("0", 64)

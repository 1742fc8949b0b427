// Package entropy provides the random sources that seed cells at construction
// and drive the cloud-growth chance each generation.
// Seeded sources are reproducible; the crypto source is not.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand/v2"
)

// Source supplies the random draws used by the world.
type Source interface {
	// IntN returns a uniform integer in [0, n). Returns 0 when n <= 0.
	IntN(n int) int
	// Float64 returns a uniform float in [0, 1).
	Float64() float64
}

// Seeded is a deterministic PCG-backed source.
type Seeded struct {
	r *mrand.Rand
}

// NewSeeded creates a deterministic source. Identical seeds yield identical
// draw sequences.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{r: mrand.New(mrand.NewPCG(uint64(seed), 0))}
}

// IntN returns a uniform integer in [0, n).
func (s *Seeded) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return s.r.IntN(n)
}

// Float64 returns a uniform float in [0, 1).
func (s *Seeded) Float64() float64 {
	return s.r.Float64()
}

// Crypto draws from crypto/rand. Runs using it cannot be replayed.
type Crypto struct{}

// IntN returns a uniform integer in [0, n), drawn without modulo bias.
func (Crypto) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// Float64 returns a uniform float in [0, 1) with 53 bits of precision.
func (Crypto) Float64() float64 {
	return cryptoRandFloat()
}

// PickSeed returns seed unchanged, or a fresh non-zero seed when seed is 0.
func PickSeed(seed int64) int64 {
	for seed == 0 {
		seed = int64(cryptoRandFloat() * (1 << 62))
	}
	return seed
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

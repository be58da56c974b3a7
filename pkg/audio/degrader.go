package audio

import (
	"math"
	"math/rand"
)

// Degrader simulates weak-signal transmit audio: 20 ms blocks are muted
// at random and the rest gets additive noise. It is deterministic for a
// given seed.
type Degrader struct {
	rng     *rand.Rand
	dropout float64
	noise   float64
	block   int
}

// NewDegrader creates a degrader. dropout is the probability a block is
// muted; noise is the noise amplitude as a fraction of full scale.
func NewDegrader(seed int64, dropout, noise float64, sampleRate int) *Degrader {
	block := sampleRate / 50
	if block <= 0 {
		block = 160
	}
	return &Degrader{
		rng:     rand.New(rand.NewSource(seed)),
		dropout: dropout,
		noise:   noise,
		block:   block,
	}
}

// Apply returns a degraded copy of samples
func (d *Degrader) Apply(samples []int16) []int16 {
	out := make([]int16, len(samples))
	amp := d.noise * math.MaxInt16

	for start := 0; start < len(samples); start += d.block {
		end := min(start+d.block, len(samples))
		if d.rng.Float64() < d.dropout {
			continue
		}
		for i := start; i < end; i++ {
			n := (d.rng.Float64()*2 - 1) * amp
			out[i] = clamp16(float64(samples[i]) + n)
		}
	}
	return out
}

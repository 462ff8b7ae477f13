package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixedSampler(amplify bool, roll int) *Sampler {
	return &Sampler{amplify: amplify, intn: func(int) int { return roll }}
}

func TestSampler_Bounds(t *testing.T) {
	s := NewSampler(false)
	for i := 0; i < 1000; i++ {
		assert.Equal(t, 0, s.Copies(0))
		assert.Equal(t, 0, s.Copies(-5))
		assert.Equal(t, 1, s.Copies(100))
		assert.Equal(t, 1, s.Copies(550))
	}
}

func TestSampler_Amplify(t *testing.T) {
	assert.Equal(t, 3, fixedSampler(true, 99).Copies(300))
	assert.Equal(t, 6, fixedSampler(true, 10).Copies(550))
	assert.Equal(t, 5, fixedSampler(true, 60).Copies(550))
	assert.Equal(t, 1, fixedSampler(false, 10).Copies(550))
}

func TestSampler_Fraction(t *testing.T) {
	assert.Equal(t, 1, fixedSampler(false, 49).Copies(50))
	assert.Equal(t, 0, fixedSampler(false, 50).Copies(50))
}

func TestSampler_FiftyPercentDistribution(t *testing.T) {
	s := NewSampler(false)
	const rounds = 10000

	hits := 0
	for i := 0; i < rounds; i++ {
		hits += s.Copies(50)
	}

	assert.GreaterOrEqual(t, hits, 4500)
	assert.LessOrEqual(t, hits, 5500)
}

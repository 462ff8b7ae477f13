package dispatcher

import "math/rand"

// Sampler turns a duplication percentage into a number of copies.
//
// A percentage p yields p/100 guaranteed copies plus one more with
// probability (p%100)/100, so 100 always fires once, 0 never fires and 550
// fires five or six times. With amplification disabled anything at or above
// 100 fires exactly once.
type Sampler struct {
	amplify bool
	intn    func(n int) int
}

// NewSampler creates a sampler backed by the process-wide random source
func NewSampler(amplify bool) *Sampler {
	return &Sampler{amplify: amplify, intn: rand.Intn}
}

// Copies returns how many copies to send for percentage
func (s *Sampler) Copies(percentage int) int {
	if percentage <= 0 {
		return 0
	}
	if percentage >= 100 && !s.amplify {
		return 1
	}

	copies := percentage / 100
	if rem := percentage % 100; rem > 0 && s.intn(100) < rem {
		copies++
	}
	return copies
}

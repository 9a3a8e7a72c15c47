package core

import (
	"math/rand/v2"
	"sync"
)

// randomizer serializes access to a *rand.Rand, which is not safe for concurrent use.
type randomizer struct {
	mutex sync.Mutex
	rng   *rand.Rand
}

func newRandomizer(rng *rand.Rand) *randomizer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &randomizer{rng: rng}
}

func (r *randomizer) Perm(n int) []int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.rng.Perm(n)
}

func (r *randomizer) Shuffle(n int, swap func(i, j int)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rng.Shuffle(n, swap)
}

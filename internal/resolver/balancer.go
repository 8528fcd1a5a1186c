package resolver

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"genie/internal/config"
	"genie/internal/errs"
)

// Balancer picks one of n candidates, n > 0. Candidates arrive sorted by
// (cluster id, command id).
type Balancer interface {
	Pick(n int) int
}

type RandomBalancer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomBalancer(seed int64) *RandomBalancer {
	return &RandomBalancer{rnd: rand.New(rand.NewSource(seed))}
}

func (b *RandomBalancer) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rnd.Intn(n)
}

type RoundRobinBalancer struct {
	next atomic.Uint64
}

func NewRoundRobinBalancer() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

func (b *RoundRobinBalancer) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return int((b.next.Add(1) - 1) % uint64(n))
}

// NewBalancer builds the balancer named in the catalog config.
func NewBalancer(name string, seed int64) (Balancer, error) {
	switch name {
	case "", config.BalancerRandom:
		return NewRandomBalancer(seed), nil
	case config.BalancerRoundRobin:
		return NewRoundRobinBalancer(), nil
	default:
		return nil, errs.ServerConfiguration("unknown balancer %q", name)
	}
}

package scenario

import (
	"math/rand"
	"sync"
	"time"
)

// Selector picks scenarios proportionally to their weight.
// Safe for concurrent use from many virtual users; the scenario list is
// never mutated after construction.
type Selector struct {
	scenarios []Scenario
	rng       *rand.Rand
	mu        sync.Mutex
}

// NewSelector creates a selector over the given scenarios. A zero seed
// falls back to a time-based seed; pass a fixed seed for reproducible runs.
func NewSelector(scenarios []Scenario, seed int64) (*Selector, error) {
	if err := Validate(scenarios); err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	copied := make([]Scenario, len(scenarios))
	copy(copied, scenarios)

	return &Selector{
		scenarios: copied,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// Pick draws r in [0,100) and walks the cumulative weights, returning the
// first scenario whose running total reaches r. Falls back to the first
// scenario when the weights sum below 100 or floating point leaves no match.
func (s *Selector) Pick() *Scenario {
	s.mu.Lock()
	r := s.rng.Float64() * 100
	s.mu.Unlock()

	cumulative := 0.0
	for i := range s.scenarios {
		cumulative += float64(s.scenarios[i].Weight)
		if cumulative >= r {
			return &s.scenarios[i]
		}
	}

	return &s.scenarios[0]
}

// Scenarios returns the immutable scenario list.
func (s *Selector) Scenarios() []Scenario {
	return s.scenarios
}

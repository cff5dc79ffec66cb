// Package matchmaker chooses the next pair of items to compare.
package matchmaker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/rating"
)

// Rand is the randomness the matchmaker consumes. *math/rand/v2.Rand
// satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Matchmaker proposes matchups that maximise expected information while
// favouring under-sampled items. It is safe for concurrent use.
type Matchmaker struct {
	mu              sync.Mutex
	rng             Rand
	explorationRate float64
	jitterMin       float64
	jitterMax       float64
	scale           float64
	newID           func() string
}

// New creates a Matchmaker with default parameters and a clock-seeded source.
func New(opts ...Option) *Matchmaker {
	m := &Matchmaker{
		explorationRate: DefaultExplorationRate,
		jitterMin:       DefaultJitterMin,
		jitterMax:       DefaultJitterMax,
		scale:           rating.DefaultScale,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = NewRand(0)
	}
	return m
}

// Select picks the next matchup among items. It reports false when fewer
// than two distinct items are available. Items missing from snap count as
// unrated and unobserved.
func (m *Matchmaker) Select(items []string, snap model.Snapshot) (model.Matchup, bool) {
	items = distinct(items)
	n := len(items)
	if n < 2 {
		return model.Matchup{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var a, b int
	branch := model.BranchExploit
	if m.rng.Float64() < m.explorationRate {
		branch = model.BranchExplore
		a, b = m.explore(n)
	} else {
		a, b = m.exploit(items, snap)
	}

	return model.Matchup{
		ID:         m.newID(),
		Collection: snap.Collection(),
		Baseline:   items[a],
		Candidate:  items[b],
		Branch:     branch,
	}, true
}

// explore draws a uniformly random ordered pair of distinct indices.
func (m *Matchmaker) explore(n int) (int, int) {
	a := m.rng.IntN(n)
	b := m.rng.IntN(n - 1)
	if b >= a {
		b++
	}
	if m.rng.Float64() < 0.5 {
		a, b = b, a
	}
	return a, b
}

// exploit scores every unordered pair by entropy times under-sampling
// weight times jitter and keeps the first strict maximum.
func (m *Matchmaker) exploit(items []string, snap model.Snapshot) (int, int) {
	n := len(items)
	recs := make([]model.Record, n)
	for i, id := range items {
		recs[i] = snap.Get(id)
	}

	best := -1.0
	var a, b int
	span := m.jitterMax - m.jitterMin
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			p := rating.WinProbability(recs[i].Rating, recs[j].Rating, m.scale)
			h := rating.Entropy(p)
			w := 0.5 * (1/(1+float64(recs[i].Observations)) + 1/(1+float64(recs[j].Observations)))
			score := h * w * (m.jitterMin + span*m.rng.Float64())
			if score > best {
				best = score
				if m.rng.Float64() < 0.5 {
					a, b = j, i
				} else {
					a, b = i, j
				}
			}
		}
	}
	return a, b
}

func distinct(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, id := range items {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

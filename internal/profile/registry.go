package profile

import (
	"sync"

	"github.com/dukerupert/ecoquest/internal/model"
)

// Registry indexes live States by user so that a write made on behalf of a
// user is reflected on every connection that user has open.
type Registry struct {
	mu     sync.Mutex
	states map[int64]map[*State]struct{}
}

func NewRegistry() *Registry {
	return &Registry{states: make(map[int64]map[*State]struct{})}
}

// Attach adds s under userID and returns a function that removes it.
func (r *Registry) Attach(userID int64, s *State) func() {
	r.mu.Lock()
	set, ok := r.states[userID]
	if !ok {
		set = make(map[*State]struct{})
		r.states[userID] = set
	}
	set[s] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.states[userID], s)
			if len(r.states[userID]) == 0 {
				delete(r.states, userID)
			}
		})
	}
}

// Begin opens a write of delta points on every State of userID.
func (r *Registry) Begin(userID int64, delta int) *Pending {
	r.mu.Lock()
	states := make([]*State, 0, len(r.states[userID]))
	for s := range r.states[userID] {
		states = append(states, s)
	}
	r.mu.Unlock()

	p := &Pending{}
	for _, s := range states {
		p.writes = append(p.writes, s.Begin(delta))
	}
	return p
}

// Pending groups the writes opened by one Begin call.
type Pending struct {
	writes []*Write
}

func (p *Pending) Confirm(total int, badges []model.EarnedBadge) {
	for _, w := range p.writes {
		w.Confirm(total, badges)
	}
}

func (p *Pending) Fail() {
	for _, w := range p.writes {
		w.Fail()
	}
}

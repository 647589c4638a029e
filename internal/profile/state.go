package profile

import (
	"sync"

	"github.com/dukerupert/ecoquest/internal/model"
)

// Phase is where a connection's user stands in the account lifecycle.
type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseNew             Phase = "new"
	PhaseProgressing     Phase = "progressing"
	PhaseDeleted         Phase = "deleted"
)

// WriteStatus reports the outcome of the most recent profile write.
type WriteStatus string

const (
	WriteIdle      WriteStatus = "idle"
	WritePending   WriteStatus = "pending"
	WriteConfirmed WriteStatus = "confirmed"
	WriteFailed    WriteStatus = "failed"
)

// View is a point-in-time copy of a State.
type View struct {
	Phase         Phase              `json:"phase"`
	Guest         bool               `json:"guest,omitempty"`
	Profile       *model.UserProfile `json:"profile,omitempty"`
	Write         WriteStatus        `json:"write"`
	PendingPoints int                `json:"pending_points,omitempty"`
}

// State tracks one connection's view of its user's profile. Snapshots from
// the store replace the confirmed profile. A write in flight is kept apart
// from it and only shown as PendingPoints until it is confirmed or rolled
// back. Snapshots may arrive before or after the confirmation of the write
// they contain.
type State struct {
	mu       sync.Mutex
	phase    Phase
	guest    bool
	profile  *model.UserProfile
	writes   map[*Write]int
	last     WriteStatus
	onChange func(View)
}

// NewState returns an unauthenticated State. onChange, if set, is called
// with the new view after every change, outside the lock.
func NewState(onChange func(View)) *State {
	return &State{
		phase:    PhaseUnauthenticated,
		writes:   make(map[*Write]int),
		last:     WriteIdle,
		onChange: onChange,
	}
}

func phaseOf(p *model.UserProfile) Phase {
	if p.Points == 0 && len(p.Badges) == 0 {
		return PhaseNew
	}
	return PhaseProgressing
}

func cloneProfile(p *model.UserProfile) *model.UserProfile {
	c := *p
	c.Badges = append([]model.EarnedBadge(nil), p.Badges...)
	return &c
}

// SignIn moves the state to authenticated with the given profile.
func (s *State) SignIn(id model.Identity, p *model.UserProfile) {
	s.update(func() bool {
		if s.phase == PhaseDeleted {
			return false
		}
		s.guest = id.Guest
		s.profile = cloneProfile(p)
		s.phase = phaseOf(s.profile)
		s.writes = make(map[*Write]int)
		s.last = WriteIdle
		return true
	})
}

// SignOut returns to unauthenticated. A guest's profile is forgotten.
func (s *State) SignOut() {
	s.update(func() bool {
		if s.phase == PhaseDeleted || s.phase == PhaseUnauthenticated {
			return false
		}
		s.phase = PhaseUnauthenticated
		s.guest = false
		s.profile = nil
		s.writes = make(map[*Write]int)
		s.last = WriteIdle
		return true
	})
}

// Delete enters the terminal deleted phase.
func (s *State) Delete() {
	s.update(func() bool {
		if s.phase == PhaseDeleted {
			return false
		}
		s.phase = PhaseDeleted
		s.profile = nil
		s.writes = make(map[*Write]int)
		return true
	})
}

// Apply installs a profile snapshot from the store. A nil snapshot for a
// signed-in user means the profile is gone.
func (s *State) Apply(p *model.UserProfile) {
	s.update(func() bool {
		switch s.phase {
		case PhaseUnauthenticated, PhaseDeleted:
			return false
		}
		if p == nil {
			if s.guest {
				return false
			}
			s.phase = PhaseDeleted
			s.profile = nil
			s.writes = make(map[*Write]int)
			return true
		}
		s.profile = cloneProfile(p)
		if s.phase == PhaseNew {
			s.phase = phaseOf(s.profile)
		}
		return true
	})
}

// Begin opens a write that adds delta points once it is confirmed.
func (s *State) Begin(delta int) *Write {
	w := &Write{state: s}
	s.update(func() bool {
		if s.profile == nil {
			w.state = nil
			return false
		}
		s.writes[w] = delta
		s.last = WritePending
		return true
	})
	return w
}

// View returns a copy of the current state.
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *State) viewLocked() View {
	v := View{Phase: s.phase, Guest: s.guest, Write: s.last}
	if s.profile != nil {
		v.Profile = cloneProfile(s.profile)
	}
	for _, d := range s.writes {
		v.PendingPoints += d
	}
	if len(s.writes) > 0 {
		v.Write = WritePending
	}
	return v
}

func (s *State) update(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	v := s.viewLocked()
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(v)
	}
}

// Write is a profile change in flight. Exactly one of Confirm or Fail takes
// effect; later calls are ignored.
type Write struct {
	state *State
}

// Confirm folds the committed result into the profile: the new total and
// any badges it earned.
func (w *Write) Confirm(total int, badges []model.EarnedBadge) {
	s := w.state
	if s == nil {
		return
	}
	s.update(func() bool {
		if _, ok := s.writes[w]; !ok {
			return false
		}
		delete(s.writes, w)
		s.last = WriteConfirmed
		if s.profile == nil {
			return true
		}
		if total > s.profile.Points {
			s.profile.Points = total
		}
		held := make(map[string]bool, len(s.profile.Badges))
		for _, b := range s.profile.Badges {
			held[b.BadgeID] = true
		}
		for _, b := range badges {
			if !held[b.BadgeID] {
				s.profile.Badges = append(s.profile.Badges, b)
				held[b.BadgeID] = true
			}
		}
		s.phase = phaseOf(s.profile)
		return true
	})
}

// Fail drops the write. The confirmed profile is left as it was.
func (w *Write) Fail() {
	s := w.state
	if s == nil {
		return
	}
	s.update(func() bool {
		if _, ok := s.writes[w]; !ok {
			return false
		}
		delete(s.writes, w)
		s.last = WriteFailed
		return true
	})
}

package engine

import (
	"sync"
)

// Slot names an independent stream of async requests, e.g. one flag image per selector side.
type Slot string

const (
	SlotFrom Slot = "from"
	SlotTo   Slot = "to"
)

// Ticket tags an issued request with its position in the slot's issue order.
type Ticket struct {
	Slot Slot
	Seq  uint64
}

// Sequencer hands out monotonic tickets per slot so that a late response
// for an older request never overwrites the result of a newer one.
type Sequencer struct {
	mu      sync.Mutex
	latest  map[Slot]uint64
	onStale func(Ticket)
}

// NewSequencer creates a sequencer. onStale, if set, is called for every rejected ticket.
func NewSequencer(onStale func(Ticket)) *Sequencer {
	return &Sequencer{
		latest:  make(map[Slot]uint64),
		onStale: onStale,
	}
}

// Issue records a new request for slot and returns its ticket.
func (s *Sequencer) Issue(slot Slot) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[slot]++
	return Ticket{Slot: slot, Seq: s.latest[slot]}
}

// Accept reports whether t is still the newest ticket for its slot.
// Responses holding an older ticket must be discarded.
func (s *Sequencer) Accept(t Ticket) bool {
	s.mu.Lock()
	ok := s.latest[t.Slot] == t.Seq
	s.mu.Unlock()

	if !ok && s.onStale != nil {
		s.onStale(t)
	}
	return ok
}

// Latest returns the sequence number of the newest ticket issued for slot (0 if none).
func (s *Sequencer) Latest(slot Slot) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[slot]
}

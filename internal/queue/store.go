package queue

import (
	"fmt"
)

// Store keeps the ordered list of active booking IDs per dock. Positions are
// dense integers starting at 0. The store is not goroutine-safe on its own;
// the engine serializes access per warehouse.
type Store struct {
	docks map[int64][]int64 // dockID -> booking IDs in queue order
	where map[int64]int64   // bookingID -> dockID
}

// NewStore creates an empty queue store.
func NewStore() *Store {
	return &Store{
		docks: make(map[int64][]int64),
		where: make(map[int64]int64),
	}
}

// Queue returns a copy of the dock's booking IDs in queue order.
func (s *Store) Queue(dockID int64) []int64 {
	q := s.docks[dockID]
	out := make([]int64, len(q))
	copy(out, q)
	return out
}

// Len returns the number of active bookings queued at the dock.
func (s *Store) Len(dockID int64) int {
	return len(s.docks[dockID])
}

// Position returns the booking's dock and dense position.
func (s *Store) Position(bookingID int64) (dockID int64, pos int, ok bool) {
	dockID, ok = s.where[bookingID]
	if !ok {
		return 0, 0, false
	}
	for i, id := range s.docks[dockID] {
		if id == bookingID {
			return dockID, i, true
		}
	}
	// where map said the booking is queued but the dock list disagrees.
	return 0, 0, false
}

// InsertAt places the booking at position within the dock's queue, shifting
// later entries up by one. Positions past the end are clamped to append.
func (s *Store) InsertAt(dockID, bookingID int64, position int) error {
	if _, exists := s.where[bookingID]; exists {
		return fmt.Errorf("booking %d is already queued", bookingID)
	}
	q := s.docks[dockID]
	if position < 0 {
		position = 0
	}
	if position > len(q) {
		position = len(q)
	}
	q = append(q, 0)
	copy(q[position+1:], q[position:])
	q[position] = bookingID
	s.docks[dockID] = q
	s.where[bookingID] = dockID
	return nil
}

// Remove deletes the booking from its dock's queue, shifting later entries
// down by one.
func (s *Store) Remove(bookingID int64) error {
	dockID, pos, ok := s.Position(bookingID)
	if !ok {
		return fmt.Errorf("booking %d is not queued", bookingID)
	}
	q := s.docks[dockID]
	s.docks[dockID] = append(q[:pos], q[pos+1:]...)
	delete(s.where, bookingID)
	return nil
}

// MoveWithin moves the booking to newPosition inside its current dock.
func (s *Store) MoveWithin(bookingID int64, newPosition int) error {
	dockID, ok := s.where[bookingID]
	if !ok {
		return fmt.Errorf("booking %d is not queued", bookingID)
	}
	if err := s.Remove(bookingID); err != nil {
		return err
	}
	return s.InsertAt(dockID, bookingID, newPosition)
}

// MoveAcross moves the booking from its current dock into toDock at
// newPosition. Both docks are re-densified in the same step.
func (s *Store) MoveAcross(bookingID, toDock int64, newPosition int) error {
	if _, ok := s.where[bookingID]; !ok {
		return fmt.Errorf("booking %d is not queued", bookingID)
	}
	if err := s.Remove(bookingID); err != nil {
		return err
	}
	return s.InsertAt(toDock, bookingID, newPosition)
}

// Swap exchanges the positions of two bookings queued at the same dock
// without touching any other entry's order.
func (s *Store) Swap(a, b int64) error {
	dockA, posA, okA := s.Position(a)
	dockB, posB, okB := s.Position(b)
	if !okA || !okB {
		return fmt.Errorf("both bookings must be queued to swap")
	}
	if dockA != dockB {
		return fmt.Errorf("bookings %d and %d are queued at different docks", a, b)
	}
	q := s.docks[dockA]
	q[posA], q[posB] = q[posB], q[posA]
	return nil
}

// CheckDense verifies the density invariant for the dock: every queued
// booking is tracked, tracked exactly once, and maps back to this dock.
func (s *Store) CheckDense(dockID int64) error {
	seen := make(map[int64]bool)
	for pos, id := range s.docks[dockID] {
		if seen[id] {
			return fmt.Errorf("dock %d: booking %d appears twice", dockID, id)
		}
		seen[id] = true
		if s.where[id] != dockID {
			return fmt.Errorf("dock %d: booking %d at position %d maps to dock %d", dockID, id, pos, s.where[id])
		}
	}
	return nil
}

// Snapshot returns position by booking ID for the dock, for persistence.
func (s *Store) Snapshot(dockID int64) map[int64]int {
	q := s.docks[dockID]
	out := make(map[int64]int, len(q))
	for i, id := range q {
		out[id] = i
	}
	return out
}

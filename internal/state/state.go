// Package state tracks the latest accepted telemetry snapshot for each
// drone in the mission.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nidar-uav/ground-control/internal/telemetry"
)

var (
	// ErrUnknownDrone is returned for a drone ID the store was not seeded with.
	ErrUnknownDrone = errors.New("unknown drone")

	// ErrStalePacket is returned when a packet's sequence number does not
	// advance past the stored snapshot.
	ErrStalePacket = errors.New("stale packet")
)

type entry struct {
	seen bool
	snap telemetry.DroneState
}

// Store holds one snapshot per seeded drone. The drone set is fixed at
// construction; entries are never removed during a session.
type Store struct {
	mu   sync.RWMutex
	ids  []int
	byID map[int]*entry
}

// NewStore creates a store seeded with the given drone IDs.
func NewStore(ids ...int) *Store {
	s := &Store{
		ids:  make([]int, 0, len(ids)),
		byID: make(map[int]*entry, len(ids)),
	}
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			continue
		}
		s.ids = append(s.ids, id)
		s.byID[id] = &entry{}
	}
	sort.Ints(s.ids)
	return s
}

// Apply installs snap as the drone's current state. It rejects IDs the store
// was not seeded with and packets whose sequence number does not advance
// past the stored one; the first packet for a drone is always accepted. On
// error the stored snapshot is unchanged.
func (s *Store) Apply(snap telemetry.DroneState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[snap.DroneID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownDrone, snap.DroneID)
	}
	if e.seen && snap.PacketCount <= e.snap.PacketCount {
		return fmt.Errorf("%w: drone %d count %d, have %d",
			ErrStalePacket, snap.DroneID, snap.PacketCount, e.snap.PacketCount)
	}

	e.snap = snap
	e.seen = true
	return nil
}

// Get returns a copy of the drone's current snapshot. The second return is
// false until the drone's first packet has been applied.
func (s *Store) Get(id int) (telemetry.DroneState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok || !e.seen {
		return telemetry.DroneState{}, false
	}
	return e.snap, true
}

// All returns copies of every applied snapshot, ordered by drone ID.
func (s *Store) All() []telemetry.DroneState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]telemetry.DroneState, 0, len(s.ids))
	for _, id := range s.ids {
		if e := s.byID[id]; e.seen {
			out = append(out, e.snap)
		}
	}
	return out
}

// IDs returns the seeded drone IDs in ascending order.
func (s *Store) IDs() []int {
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out
}

// Reset clears all snapshots and re-arms first-packet acceptance. It is for
// explicit session restarts; sequence numbers restart from the next packet
// received per drone.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.byID {
		*e = entry{}
	}
}

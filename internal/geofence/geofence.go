// Package geofence checks drone positions against the configured operating
// zones and reports containment transitions.
package geofence

import (
	"math"
	"sync"
)

// Zone is a circular operating area.
type Zone struct {
	Name      string
	CenterLat float64
	CenterLon float64
	RadiusKM  float64
}

// Contains reports whether the position lies within the zone.
func (z Zone) Contains(lat, lon float64) bool {
	return distanceMeters(z.CenterLat, z.CenterLon, lat, lon) <= z.RadiusKM*1000
}

// Transition is the result of one position observation.
type Transition int

const (
	None Transition = iota
	Breach
	Clear
)

// Monitor tracks per-drone geofence containment. A drone is in breach when
// its own geofence flag is set or its reported position lies outside every
// configured zone. Transitions are edge-triggered: Observe reports Breach
// or Clear only when the containment status changes.
type Monitor struct {
	zones []Zone

	mu       sync.Mutex
	breached map[int]bool
	known    map[int]bool
}

// NewMonitor creates a monitor for the given zones. With no zones, only the
// drone-reported flag can put a drone in breach.
func NewMonitor(zones []Zone) *Monitor {
	return &Monitor{
		zones:    zones,
		breached: make(map[int]bool),
		known:    make(map[int]bool),
	}
}

// Observe updates containment for the drone from its reported position and
// onboard geofence flag. The first observation reports Breach only if the
// drone is already outside.
func (m *Monitor) Observe(droneID int, lat, lon float64, droneFlag bool) Transition {
	breached := droneFlag || !m.insideAny(lat, lon)

	m.mu.Lock()
	defer m.mu.Unlock()

	was := m.breached[droneID]
	first := !m.known[droneID]
	m.known[droneID] = true
	m.breached[droneID] = breached

	switch {
	case breached && (first || !was):
		return Breach
	case !breached && !first && was:
		return Clear
	}
	return None
}

// Breached reports whether the drone's last observation was in breach.
func (m *Monitor) Breached(droneID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breached[droneID]
}

func (m *Monitor) insideAny(lat, lon float64) bool {
	if len(m.zones) == 0 {
		return true
	}
	for _, z := range m.zones {
		if z.Contains(lat, lon) {
			return true
		}
	}
	return false
}

// distanceMeters is the haversine distance between two lat/lon points.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}

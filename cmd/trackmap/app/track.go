package app

import (
	"encoding/json"
	"math"
	"time"

	"github.com/nidar-uav/ground-control/internal/storage"
)

// boundsMarginDeg pads the bounding box so tracks never touch the frame.
const boundsMarginDeg = 0.0005

// kmPerLatDegree is the ground distance of one degree of latitude.
const kmPerLatDegree = 111.32

// TrackPoint is one plotted position with the quantity coloring it.
type TrackPoint struct {
	Lat, Lon float64
	Value    float64
	At       time.Time
}

// Zone is an operating area circle recovered from the recorded mission
// configuration.
type Zone struct {
	Name      string
	CenterLat float64
	CenterLon float64
	RadiusKM  float64
}

// TrackData aggregates everything one rendered map needs: per-drone
// position tracks, detection markers, zone outlines and the value and
// coordinate bounds.
type TrackData struct {
	MissionID string
	TeamID    string

	DroneIDs   []int
	Tracks     map[int][]TrackPoint
	Detections []storage.DetectionRow
	Zones      []Zone

	Points                       int
	LatMin, LatMax               float64
	LonMin, LonMax               float64
	ValueMin, ValueMax           float64
	TimestampStart, TimestampEnd time.Time
}

func NewTrackData(missionID, teamID string) *TrackData {
	return &TrackData{
		MissionID: missionID,
		TeamID:    teamID,
		Tracks:    make(map[int][]TrackPoint),
		LatMin:    math.MaxFloat64,
		LatMax:    -math.MaxFloat64,
		LonMin:    math.MaxFloat64,
		LonMax:    -math.MaxFloat64,
		ValueMin:  math.MaxFloat64,
		ValueMax:  -math.MaxFloat64,
	}
}

// Update appends one telemetry position to the drone's track and grows the
// bounds. Records without a GPS fix report position 0,0 and are skipped so
// they do not blow out the bounding box.
func (t *TrackData) Update(droneID int, lat, lon, value float64, at time.Time) {
	if lat == 0 && lon == 0 {
		return
	}

	if _, ok := t.Tracks[droneID]; !ok {
		t.DroneIDs = append(t.DroneIDs, droneID)
	}
	t.Tracks[droneID] = append(t.Tracks[droneID], TrackPoint{Lat: lat, Lon: lon, Value: value, At: at})
	t.Points++

	t.LatMin = min(t.LatMin, lat)
	t.LatMax = max(t.LatMax, lat)
	t.LonMin = min(t.LonMin, lon)
	t.LonMax = max(t.LonMax, lon)
	t.ValueMin = min(t.ValueMin, value)
	t.ValueMax = max(t.ValueMax, value)

	if t.TimestampStart.IsZero() || t.TimestampStart.After(at) {
		t.TimestampStart = at
	}
	if t.TimestampEnd.IsZero() || t.TimestampEnd.Before(at) {
		t.TimestampEnd = at
	}
}

// AddDetection registers a detection marker. Markers outside the track
// bounds still render; the bounds grow to include them.
func (t *TrackData) AddDetection(row storage.DetectionRow) {
	if row.Latitude == 0 && row.Longitude == 0 {
		return
	}

	t.Detections = append(t.Detections, row)
	t.LatMin = min(t.LatMin, row.Latitude)
	t.LatMax = max(t.LatMax, row.Latitude)
	t.LonMin = min(t.LonMin, row.Longitude)
	t.LonMax = max(t.LonMax, row.Longitude)
}

// SetZones registers the operating zones and widens the bounds to the full
// circle of each, so the configured area is always in frame.
func (t *TrackData) SetZones(zones []Zone) {
	t.Zones = zones
	for _, z := range zones {
		latSpan := z.RadiusKM / kmPerLatDegree
		lonSpan := z.RadiusKM / (kmPerLatDegree * math.Cos(z.CenterLat*math.Pi/180))

		t.LatMin = min(t.LatMin, z.CenterLat-latSpan)
		t.LatMax = max(t.LatMax, z.CenterLat+latSpan)
		t.LonMin = min(t.LonMin, z.CenterLon-lonSpan)
		t.LonMax = max(t.LonMax, z.CenterLon+lonSpan)
	}
}

// Finalize pads the bounds and reports whether anything is renderable.
func (t *TrackData) Finalize() bool {
	if t.Points == 0 && len(t.Zones) == 0 {
		return false
	}

	t.LatMin -= boundsMarginDeg
	t.LatMax += boundsMarginDeg
	t.LonMin -= boundsMarginDeg
	t.LonMax += boundsMarginDeg

	if t.ValueMin > t.ValueMax {
		t.ValueMin, t.ValueMax = 0, 0
	}
	return true
}

// SpanMeters returns the east-west and north-south extent of the bounds.
func (t *TrackData) SpanMeters() (ew, ns float64) {
	const metersPerDegree = kmPerLatDegree * 1000

	midLat := (t.LatMin + t.LatMax) / 2
	ew = (t.LonMax - t.LonMin) * metersPerDegree * math.Cos(midLat*math.Pi/180)
	ns = (t.LatMax - t.LatMin) * metersPerDegree
	return ew, ns
}

// missionZones recovers the operating zones from the configuration recorded
// with the mission. Missions recorded without zones render without them.
func missionZones(mission *storage.Mission) []Zone {
	if mission.Config == nil {
		return nil
	}

	var recorded struct {
		Zones []Zone
	}
	if err := json.Unmarshal([]byte(*mission.Config), &recorded); err != nil {
		return nil
	}
	return recorded.Zones
}

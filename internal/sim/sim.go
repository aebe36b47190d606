// Package sim generates realistic dual-drone telemetry for exercising a
// ground station without aircraft: a scout that reports payload detections
// and a spray drone that works through its tank. Packets evolve through a
// full sortie (takeoff, transit, work, return, landing) with battery
// drain, sensor noise, link dropouts and occasional geofence excursions.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/nidar-uav/ground-control/internal/telemetry"
)

const (
	metersPerDegree = 111000.0

	cruiseAltScout = 40.0
	cruiseAltSpray = 20.0

	lowBattery      = 20.0
	criticalBattery = 5.0
)

type role int

const (
	roleScout role = iota
	roleSpray
)

// drone is one simulated vehicle, mutated every tick.
type drone struct {
	id   int
	role role

	count    uint64
	lat, lon float64
	alt      float64
	battery  float64

	state   telemetry.FlightState
	mode    telemetry.Mode
	payload telemetry.PayloadStatus
	command string

	enrouteTicks   int
	workTicks      int
	excursionTicks int
	detectCooldown int
}

// Fleet evolves a set of drones inside a circular operating zone centered
// on the launch point. The first drone flies as scout, the second as
// sprayer; further ids fly as scouts.
type Fleet struct {
	teamID    string
	centerLat float64
	centerLon float64
	radiusKM  float64
	start     time.Time
	rng       *rand.Rand
	drones    []*drone
}

// NewFleet launches the fleet at the zone center. The seed makes a run
// reproducible when the caller also supplies a fixed tick clock.
func NewFleet(teamID string, ids []int, centerLat, centerLon, radiusKM float64, start time.Time, seed int64) *Fleet {
	f := &Fleet{
		teamID:    teamID,
		centerLat: centerLat,
		centerLon: centerLon,
		radiusKM:  radiusKM,
		start:     start,
		rng:       rand.New(rand.NewSource(seed)),
	}

	for i, id := range ids {
		d := &drone{
			id:      id,
			role:    roleScout,
			lat:     centerLat,
			lon:     centerLon,
			battery: 100,
			state:   telemetry.StateTakeoff,
			mode:    telemetry.ModeAuto,
			payload: telemetry.PayloadNone,
			command: "SCAN_AREA",
		}
		if i == 1 {
			d.role = roleSpray
			d.payload = telemetry.PayloadReady
			d.command = "SPRAY_ZONE"
		}
		f.drones = append(f.drones, d)
	}
	return f
}

// Tick advances every drone by one step and returns the packets that made
// it to the ground. A dropped packet leaves a gap in the sequence counts,
// exactly like a real lossy link.
func (f *Fleet) Tick(now time.Time) []telemetry.Packet {
	packets := make([]telemetry.Packet, 0, len(f.drones))
	for _, d := range f.drones {
		if pkt, ok := f.step(d, now); ok {
			packets = append(packets, pkt)
		}
	}
	return packets
}

func (f *Fleet) step(d *drone, now time.Time) (telemetry.Packet, bool) {
	d.count++

	f.advanceState(d)
	f.move(d)
	f.drainBattery(d)

	breach := f.distanceFromCenter(d) > f.radiusKM*1000

	link := telemetry.LinkGood
	if f.rng.Float64() < 0.03 {
		link = telemetry.LinkWeak
	}

	pkt := telemetry.Packet{
		DroneID:        d.id,
		TeamID:         f.teamID,
		MissionTime:    formatClock(now.Sub(f.start)),
		PacketCount:    d.count,
		Mode:           d.mode,
		State:          d.state,
		Altitude:       round1(d.alt),
		Temperature:    round1(22 + f.noise(3)),
		Pressure:       round1(1013.2 - d.alt*0.12 + f.noise(0.5)),
		Voltage:        round2(9.0 + 3.6*d.battery/100),
		GyroRoll:       round2(f.noise(3)),
		GyroPitch:      round2(f.noise(3)),
		GyroYaw:        round2(f.noise(2)),
		AccelRoll:      round2(f.noise(0.4)),
		AccelPitch:     round2(f.noise(0.4)),
		AccelYaw:       round2(9.81 + f.noise(0.2)),
		MagRoll:        round1(32 + f.noise(4)),
		MagPitch:       round1(-12 + f.noise(4)),
		MagYaw:         round1(54 + f.noise(4)),
		GPSTime:        now.UTC().Format("15:04:05"),
		GPSAltitude:    round1(d.alt + f.noise(1.5)),
		Latitude:       round6(d.lat),
		Longitude:      round6(d.lon),
		Satellites:     7 + f.rng.Intn(6),
		Battery:        round1(d.battery),
		LinkStatus:     link,
		AutonomyMode:   telemetry.AutonomyAuto,
		GeofenceBreach: breach,
		PayloadStatus:  d.payload,
		DetectionType:  telemetry.DetectionNone,
		CmdEcho:        d.command,
	}
	if d.mode == telemetry.ModeManual {
		pkt.AutonomyMode = telemetry.AutonomyManual
	}
	if d.state == telemetry.StateEmergency {
		pkt.AutonomyMode = telemetry.AutonomyFailsafe
	}

	f.maybeDetect(d, &pkt)

	// A lost packet never reaches the ground station.
	if f.rng.Float64() < 0.01 {
		return telemetry.Packet{}, false
	}
	return pkt, true
}

func (f *Fleet) advanceState(d *drone) {
	if d.battery <= criticalBattery && d.state != telemetry.StateLanded {
		d.state = telemetry.StateEmergency
		d.mode = telemetry.ModeLand
		return
	}

	switch d.state {
	case telemetry.StateTakeoff:
		if d.alt >= f.cruiseAlt(d) {
			d.state = telemetry.StateEnroute
		}

	case telemetry.StateEnroute:
		d.enrouteTicks++
		if d.enrouteTicks >= 5 {
			if d.role == roleSpray {
				d.state = telemetry.StateSpraying
				d.payload = telemetry.PayloadActive
			} else {
				d.state = telemetry.StateScanning
			}
		}

	case telemetry.StateScanning, telemetry.StateSpraying:
		d.workTicks++
		if d.role == roleSpray && d.workTicks >= 60 {
			d.payload = telemetry.PayloadReleased
			d.state = telemetry.StateReturning
			d.mode = telemetry.ModeRTL
			d.command = "RTB"
		}
		if d.battery <= lowBattery {
			d.state = telemetry.StateReturning
			d.mode = telemetry.ModeRTL
			d.command = "RTB"
		}

	case telemetry.StateReturning:
		if f.distanceFromCenter(d) < 30 {
			d.state = telemetry.StateLanded
			d.mode = telemetry.ModeLand
			d.command = "HOLD"
		}

	case telemetry.StateEmergency:
		if d.alt <= 0 {
			d.state = telemetry.StateLanded
		}
	}
}

func (f *Fleet) move(d *drone) {
	switch d.state {
	case telemetry.StateTakeoff:
		d.alt += 3
		f.walk(d, 1, 2)

	case telemetry.StateEnroute:
		f.walk(d, 8, 12)

	case telemetry.StateScanning, telemetry.StateSpraying:
		// An excursion deliberately wanders outside the zone for a few
		// ticks so breach handling gets exercised end to end.
		if d.excursionTicks == 0 && f.rng.Float64() < 0.005 {
			d.excursionTicks = 8
		}
		if d.excursionTicks > 0 {
			d.excursionTicks--
			f.flee(d, 10)
		} else if f.distanceFromCenter(d) > f.radiusKM*1000*0.9 {
			f.home(d, 8)
		} else {
			f.walk(d, 5, 10)
		}

	case telemetry.StateReturning:
		f.home(d, 12)

	case telemetry.StateEmergency:
		d.alt = math.Max(0, d.alt-5)

	case telemetry.StateLanded:
		d.alt = 0
	}
}

func (f *Fleet) drainBattery(d *drone) {
	drain := 0.12
	switch d.state {
	case telemetry.StateTakeoff:
		drain = 0.15
	case telemetry.StateReturning:
		drain = 0.10
	case telemetry.StateLanded:
		drain = 0.01
	}
	d.battery = math.Max(0, d.battery-drain)
}

func (f *Fleet) maybeDetect(d *drone, pkt *telemetry.Packet) {
	if d.detectCooldown > 0 {
		d.detectCooldown--
		return
	}
	if d.role != roleScout || d.state != telemetry.StateScanning {
		return
	}
	if f.rng.Float64() >= 0.06 {
		return
	}

	pkt.DetectionFlag = true
	pkt.DetectionType = telemetry.DetectionCrop
	if f.rng.Float64() < 0.3 {
		pkt.DetectionType = telemetry.DetectionHuman
	}
	pkt.DetectionConf = round2(0.55 + f.rng.Float64()*0.43)
	pkt.DetectionLat = round6(d.lat + f.noise(0.0003))
	pkt.DetectionLon = round6(d.lon + f.noise(0.0003))
	d.detectCooldown = 5
}

// walk moves the drone one tick in a random direction at a speed drawn
// from [minSpeed, maxSpeed] m/s, with a little altitude wander.
func (f *Fleet) walk(d *drone, minSpeed, maxSpeed float64) {
	heading := f.rng.Float64() * 2 * math.Pi
	speed := minSpeed + f.rng.Float64()*(maxSpeed-minSpeed)
	f.displace(d, heading, speed)
	d.alt = math.Max(1, d.alt+f.noise(1))
}

// home steers toward the launch point.
func (f *Fleet) home(d *drone, speed float64) {
	heading := math.Atan2(f.centerLon-d.lon, f.centerLat-d.lat)
	f.displace(d, heading, speed)
}

// flee steers away from the launch point.
func (f *Fleet) flee(d *drone, speed float64) {
	heading := math.Atan2(d.lon-f.centerLon, d.lat-f.centerLat)
	f.displace(d, heading, speed)
}

func (f *Fleet) displace(d *drone, heading, speed float64) {
	d.lat += (speed * math.Cos(heading)) / metersPerDegree
	d.lon += (speed * math.Sin(heading)) / (metersPerDegree * math.Cos(d.lat*math.Pi/180))
}

func (f *Fleet) distanceFromCenter(d *drone) float64 {
	dLat := (d.lat - f.centerLat) * metersPerDegree
	dLon := (d.lon - f.centerLon) * metersPerDegree * math.Cos(f.centerLat*math.Pi/180)
	return math.Hypot(dLat, dLon)
}

func (f *Fleet) cruiseAlt(d *drone) float64 {
	if d.role == roleSpray {
		return cruiseAltSpray
	}
	return cruiseAltScout
}

func (f *Fleet) noise(scale float64) float64 {
	return (f.rng.Float64()*2 - 1) * scale
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

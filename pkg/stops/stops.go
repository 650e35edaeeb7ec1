// Package stops detects signal-based stops from run telemetry:
// contiguous spans at or below a speed threshold, long enough to count
// as a halt, within radius of a known signal location.
package stops

import (
	"math"
	"time"

	"github.com/railtrace/railtrace/internal/model"
)

// Config holds the stop-detection tunables.
type Config struct {
	// SpeedThreshold is the speed (km/h) at or below which the
	// locomotive is considered stationary.
	SpeedThreshold float64

	// MinDuration is the minimum halt length to count as a stop.
	MinDuration time.Duration

	// SignalRadius is the maximum distance (metres) between the halt
	// position and a signal for the stop to be attributed to it.
	SignalRadius float64
}

// SignalLocation is a resolved signal position on the route.
type SignalLocation struct {
	Name      string
	Station   string
	SectionID string
	Latitude  float64
	Longitude float64
}

// Event is one detected signal stop.
type Event struct {
	SignalName string
	SectionID  string
	Start      time.Time
	End        time.Time
	Duration   time.Duration
	DistanceM  float64
}

const earthRadiusM = 6371000

// Haversine returns the great-circle distance in metres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Detect walks the run once and returns stops attributable to signals,
// ordered by start time. Halts away from any signal are ignored.
func Detect(samples []model.TelemetrySample, signals []SignalLocation, cfg Config) []Event {
	var out []Event

	i := 0
	for i < len(samples) {
		if samples[i].Speed > cfg.SpeedThreshold {
			i++
			continue
		}

		// Contiguous stationary span.
		j := i
		for j+1 < len(samples) && samples[j+1].Speed <= cfg.SpeedThreshold {
			j++
		}

		start, end := samples[i].Timestamp, samples[j].Timestamp
		if dur := end.Sub(start); dur >= cfg.MinDuration {
			mid := samples[(i+j)/2]
			if sig, dist, ok := nearest(mid, signals, cfg.SignalRadius); ok {
				out = append(out, Event{
					SignalName: sig.Name,
					SectionID:  sig.SectionID,
					Start:      start,
					End:        end,
					Duration:   dur,
					DistanceM:  dist,
				})
			}
		}
		i = j + 1
	}
	return out
}

// nearest finds the closest signal within the radius.
func nearest(s model.TelemetrySample, signals []SignalLocation, radius float64) (SignalLocation, float64, bool) {
	best := -1
	bestDist := radius
	for i, sig := range signals {
		d := Haversine(s.Latitude, s.Longitude, sig.Latitude, sig.Longitude)
		if d <= bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return SignalLocation{}, 0, false
	}
	return signals[best], bestDist, true
}

// Package adsb turns receiver feed documents into canonical position reports.
// Every unit conversion the system performs happens here.
package adsb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/report"
)

const (
	KnotsToKph   = 1.852
	FeetToMeters = 0.3048

	// Flight labels are stored in a fixed width column
	flightWidth = 8
)

// ErrUnknownFormat is returned for documents no adapter recognises
var ErrUnknownFormat = errors.New("unknown feed format")

// Format identifies a feed variant
type Format string

const (
	FormatAircraftJSON Format = "aircraft.json"
	FormatDataJSON     Format = "data.json"
	FormatVRS          Format = "vrs"
	FormatReport       Format = "report"
)

// Limits drops reports a receiver should not be trusted with. Zero values
// disable a limit.
type Limits struct {
	MaxSeenSeconds float64 // Reports older than this at snapshot time are stale
	MinAltitude    float64 // Metres
	MaxAltitude    float64
	MinSpeed       float64 // km/h
	MaxSpeed       float64
	MinDistance    float64 // Metres from the reporter
	MaxDistance    float64
}

// Options controls decoding
type Options struct {
	ReporterID string
	// Reporter position, used by the distance limits
	ReporterLat float64
	ReporterLon float64
	Limits      Limits
	// Snapshot time for feeds that carry none, zero means now
	Now time.Time
}

// Batch is the result of decoding one document
type Batch struct {
	Format  Format
	Reports []report.PositionReport
	Skipped int // Entries missing required fields or outside the limits
}

// Decode detects the feed variant of a document and converts it
func Decode(data []byte, opts Options) (Batch, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Batch{}, fmt.Errorf("%w: empty document", ErrUnknownFormat)
	}

	if trimmed[0] == '[' {
		var targets []LegacyTarget
		if err := json.Unmarshal(trimmed, &targets); err != nil {
			return Batch{}, fmt.Errorf("failed to parse data.json: %w", err)
		}
		return decodeLegacy(targets, opts), nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return Batch{}, fmt.Errorf("failed to parse feed document: %w", err)
	}

	switch {
	case keys["aircraft"] != nil:
		var snap Snapshot
		if err := json.Unmarshal(trimmed, &snap); err != nil {
			return Batch{}, fmt.Errorf("failed to parse aircraft.json: %w", err)
		}
		return decodeSnapshot(&snap, opts), nil
	case keys["acList"] != nil:
		var vrs VRSResponse
		if err := json.Unmarshal(trimmed, &vrs); err != nil {
			return Batch{}, fmt.Errorf("failed to parse VRS document: %w", err)
		}
		return decodeVRS(&vrs, opts), nil
	case keys["hex"] != nil:
		var r report.PositionReport
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return Batch{}, fmt.Errorf("failed to parse report: %w", err)
		}
		if opts.ReporterID != "" && r.ReporterID == "" {
			r.ReporterID = opts.ReporterID
		}
		return Batch{Format: FormatReport, Reports: []report.PositionReport{r}}, nil
	default:
		return Batch{}, ErrUnknownFormat
	}
}

func (o *Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// FormatFlight trims a callsign and cuts it to the stored width
func FormatFlight(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > flightWidth {
		s = s[:flightWidth]
	}
	return s
}

func decodeSnapshot(snap *Snapshot, opts Options) Batch {
	batch := Batch{Format: FormatAircraftJSON}
	now := snap.Now
	if now == 0 {
		now = float64(opts.now().Unix())
	}

	for i := range snap.Aircraft {
		t := &snap.Aircraft[i]
		alt := first(&t.AltBaro, &t.Altitude, &t.NavAltitude)
		speed := first(&t.GS, &t.Speed)
		seen := first(&t.SeenPos, &t.Seen)

		if t.Hex == "" || !t.Lat.Present() || !t.Lon.Present() || !alt.Present() ||
			!t.Track.Present() || !speed.Present() {
			batch.Skipped++
			continue
		}

		onGround := alt.IsGround() || alt.Float64() == 0
		if t.OnGround != nil {
			onGround = *t.OnGround
		}

		r := report.PositionReport{
			AircraftID:               strings.ToLower(strings.TrimPrefix(t.Hex, "~")),
			FlightLabel:              FormatFlight(t.Flight),
			EpochSeconds:             int64(math.Round(now - seen.Float64())),
			Latitude:                 t.Lat.Float64(),
			Longitude:                t.Lon.Float64(),
			AltitudeMeters:           alt.Float64() * FeetToMeters,
			SpeedKph:                 speed.Float64() * KnotsToKph,
			TrackDegrees:             t.Track.Float64(),
			VerticalRateMetersPerMin: first(&t.BaroRate, &t.VertRate).Float64() * FeetToMeters,
			OnGround:                 onGround,
			ReporterID:               opts.ReporterID,
		}
		batch.add(r, seen.Float64(), opts)
	}
	return batch
}

func decodeLegacy(targets []LegacyTarget, opts Options) Batch {
	batch := Batch{Format: FormatDataJSON}
	now := opts.now().Unix()

	for i := range targets {
		t := &targets[i]
		if t.Hex == "" || !t.Lat.Present() || !t.Lon.Present() || !t.Altitude.Present() ||
			!t.Track.Present() || !t.Speed.Present() {
			batch.Skipped++
			continue
		}
		if (t.ValidPosition != nil && *t.ValidPosition == 0) || (t.ValidTrack != nil && *t.ValidTrack == 0) {
			batch.Skipped++
			continue
		}

		r := report.PositionReport{
			AircraftID:               strings.ToLower(t.Hex),
			FlightLabel:              FormatFlight(t.Flight),
			EpochSeconds:             now - int64(math.Round(t.Seen.Float64())),
			Latitude:                 t.Lat.Float64(),
			Longitude:                t.Lon.Float64(),
			AltitudeMeters:           t.Altitude.Float64() * FeetToMeters,
			SpeedKph:                 t.Speed.Float64() * KnotsToKph,
			TrackDegrees:             t.Track.Float64(),
			VerticalRateMetersPerMin: t.VertRate.Float64() * FeetToMeters,
			OnGround:                 t.Altitude.IsGround() || t.Altitude.Float64() == 0,
			ReporterID:               opts.ReporterID,
		}
		batch.add(r, t.Seen.Float64(), opts)
	}
	return batch
}

func decodeVRS(vrs *VRSResponse, opts Options) Batch {
	batch := Batch{Format: FormatVRS}
	now := float64(opts.now().UnixMilli()) / 1000

	for i := range vrs.AcList {
		t := &vrs.AcList[i]
		if t.Icao == "" || !t.PosTime.Present() || !t.Alt.Present() || !t.Spd.Present() ||
			!t.Trak.Present() || !t.Long.Present() || !t.Lat.Present() || !t.Gnd.Present() {
			batch.Skipped++
			continue
		}

		base := report.PositionReport{
			AircraftID:               strings.ToLower(t.Icao),
			FlightLabel:              FormatFlight(t.Call),
			EpochSeconds:             t.PosTime.Int64() / 1000,
			Latitude:                 t.Lat.Float64(),
			Longitude:                t.Long.Float64(),
			AltitudeMeters:           t.Alt.Float64() * FeetToMeters,
			SpeedKph:                 t.Spd.Float64() * KnotsToKph,
			TrackDegrees:             t.Trak.Float64(),
			VerticalRateMetersPerMin: t.Vsi.Float64() * FeetToMeters,
			OnGround:                 t.Gnd.Bool(),
			ReporterID:               opts.ReporterID,
		}

		if (t.TT != "a" && t.TT != "s") || len(t.Cos) < 4 {
			batch.add(base, now-float64(t.PosTime.Int64())/1000, opts)
			continue
		}

		// Archive trails replace the single position with every recorded one
		for q := 0; q+3 < len(t.Cos); q += 4 {
			lat, lon, ms, value := t.Cos[q], t.Cos[q+1], t.Cos[q+2], t.Cos[q+3]
			if value == 0 {
				continue
			}
			if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
				batch.Skipped++
				continue
			}

			r := base
			r.Latitude, r.Longitude = lat, lon
			r.EpochSeconds = int64(ms) / 1000
			if t.TT == "a" {
				r.AltitudeMeters = value * FeetToMeters
			} else {
				r.SpeedKph = value * KnotsToKph
			}
			// Archived trails are replayed, never stale
			batch.add(r, 0, opts)
		}
	}
	return batch
}

func (b *Batch) add(r report.PositionReport, seen float64, opts Options) {
	if !opts.Limits.accept(&r, seen, opts) {
		b.Skipped++
		return
	}
	b.Reports = append(b.Reports, r)
}

func (l Limits) accept(r *report.PositionReport, seen float64, opts Options) bool {
	if l.MaxSeenSeconds > 0 && seen >= l.MaxSeenSeconds {
		return false
	}
	if l.MaxAltitude > 0 && (r.AltitudeMeters < l.MinAltitude || r.AltitudeMeters > l.MaxAltitude) {
		return false
	}
	if l.MaxSpeed > 0 && (r.SpeedKph < l.MinSpeed || r.SpeedKph > l.MaxSpeed) {
		return false
	}
	if l.MaxDistance > 0 {
		d := geo.HaversineMeters(opts.ReporterLat, opts.ReporterLon, r.Latitude, r.Longitude)
		if d < l.MinDistance || d > l.MaxDistance {
			return false
		}
	}
	return true
}

package runway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/yegors/planereports/internal/geo"
)

// airportDefinition is the on-disk shape of an airport
type airportDefinition struct {
	ICAO             string             `json:"icao"`
	IATA             string             `json:"iata"`
	Name             string             `json:"name"`
	City             string             `json:"city"`
	Country          string             `json:"country"`
	Altitude         float64            `json:"altitude"` // Field elevation in metres
	Lat              *float64           `json:"lat"`
	Lon              *float64           `json:"lon"`
	MagneticHeadings bool               `json:"magnetic_headings"` // Explicit runway headings are magnetic
	Runways          []runwayDefinition `json:"runways"`
}

// runwayDefinition accepts either explicit geometry or the two threshold ends
// and a width, as published in apt.dat
type runwayDefinition struct {
	Name    string       `json:"name"`
	Heading *float64     `json:"heading"`
	Lat     *float64     `json:"lat"`
	Lon     *float64     `json:"lon"`
	Area    []geo.LatLon `json:"area"`
	Ends    []geo.LatLon `json:"ends"`
	Width   float64      `json:"width"` // Metres, used with ends
}

// LoadOptions controls reference data conversion
type LoadOptions struct {
	// Date used for the magnetic model, zero means now
	Date time.Time
}

// LoadFile reads airports from a JSON file holding one airport or an array
func LoadFile(path string, opts LoadOptions) ([]Airport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open airport file: %w", err)
	}
	defer f.Close()

	airports, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return airports, nil
}

// Load reads airports from JSON holding one airport or an array
func Load(r io.Reader, opts LoadOptions) ([]Airport, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var defs []airportDefinition
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &defs)
	} else {
		var def airportDefinition
		err = json.Unmarshal(trimmed, &def)
		defs = append(defs, def)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse airport JSON: %w", err)
	}

	date := opts.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	airports := make([]Airport, 0, len(defs))
	for _, def := range defs {
		airport, err := def.build(date)
		if err != nil {
			return nil, err
		}
		airports = append(airports, airport)
	}
	return airports, nil
}

func (def airportDefinition) build(date time.Time) (Airport, error) {
	icao := strings.ToUpper(strings.TrimSpace(def.ICAO))
	if icao == "" {
		return Airport{}, errors.New("airport without an ICAO code")
	}

	airport := Airport{
		ICAO:           icao,
		IATA:           def.IATA,
		Name:           def.Name,
		City:           def.City,
		Country:        def.Country,
		AltitudeMeters: def.Altitude,
	}

	for _, rd := range def.Runways {
		rw, err := rd.build(icao)
		if err != nil {
			return Airport{}, fmt.Errorf("airport %s: %w", icao, err)
		}

		if def.MagneticHeadings && rd.Heading != nil {
			decl, err := geo.MagneticDeclination(rw.RefLatitude, rw.RefLongitude, def.Altitude, date)
			if err != nil {
				return Airport{}, fmt.Errorf("airport %s runway %s: %w", icao, rw.Name, err)
			}
			rw.HeadingDegrees = geo.MagneticToTrue(rw.HeadingDegrees, decl)
		}
		airport.Runways = append(airport.Runways, rw)
	}

	// An airport without its own position sits on its first runway
	switch {
	case def.Lat != nil && def.Lon != nil:
		airport.Latitude, airport.Longitude = *def.Lat, *def.Lon
	case len(airport.Runways) > 0:
		airport.Latitude, airport.Longitude = airport.Runways[0].RefLatitude, airport.Runways[0].RefLongitude
	default:
		return Airport{}, fmt.Errorf("airport %s has neither a position nor runways", icao)
	}
	return airport, nil
}

func (rd runwayDefinition) build(icao string) (Runway, error) {
	name := strings.TrimSpace(rd.Name)
	if name == "" {
		return Runway{}, errors.New("runway without a name")
	}
	rw := Runway{AirportID: icao, Name: name}

	switch {
	case len(rd.Ends) == 2:
		a, b := rd.Ends[0], rd.Ends[1]
		rw.HeadingDegrees = geo.InitialBearing(a.Lat, a.Lon, b.Lat, b.Lon)
		mid := geo.Midpoint(a.Lat, a.Lon, b.Lat, b.Lon)
		rw.RefLatitude, rw.RefLongitude = mid.Lat, mid.Lon
		if rd.Width > 0 {
			area, err := geo.StripArea(a, b, rd.Width)
			if err != nil {
				return Runway{}, fmt.Errorf("runway %s: %w", name, err)
			}
			rw.Area = area
		}
	case len(rd.Ends) != 0:
		return Runway{}, fmt.Errorf("runway %s needs exactly two ends, got %d", name, len(rd.Ends))
	}

	if len(rd.Area) > 0 {
		area, err := geo.NewArea(rd.Area)
		if err != nil {
			return Runway{}, fmt.Errorf("runway %s: %w", name, err)
		}
		rw.Area = area
		if len(rd.Ends) == 0 {
			c := area.Centroid()
			rw.RefLatitude, rw.RefLongitude = c.Lat, c.Lon
		}
	}

	if rd.Heading != nil {
		rw.HeadingDegrees = geo.NormalizeDegrees(*rd.Heading)
	} else if len(rd.Ends) == 0 {
		return Runway{}, fmt.Errorf("runway %s has no heading", name)
	}

	if rd.Lat != nil && rd.Lon != nil {
		rw.RefLatitude, rw.RefLongitude = *rd.Lat, *rd.Lon
	} else if len(rd.Ends) == 0 && rw.Area == nil {
		return Runway{}, fmt.Errorf("runway %s has no position", name)
	}
	return rw, nil
}

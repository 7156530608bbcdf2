package geo

import (
	"fmt"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// MagneticDeclination returns the WMM declination in degrees (+East, -West)
// at the given position and date
func MagneticDeclination(lat, lon, altMeters float64, date time.Time) (float64, error) {
	loc := egm96.NewLocationGeodetic(lat, lon, altMeters)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate magnetic field: %w", err)
	}
	return mag.D(), nil
}

// MagneticToTrue converts a magnetic heading into a true heading
func MagneticToTrue(magneticHeading, declination float64) float64 {
	return NormalizeDegrees(magneticHeading + declination)
}

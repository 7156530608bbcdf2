package geo

import "math"

// NormalizeDegrees maps any angle into [0, 360)
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Reciprocal returns the opposite direction of a heading, normalized to [0, 360)
func Reciprocal(heading float64) float64 {
	return NormalizeDegrees(heading + 180)
}

// AngularDifference returns the absolute circular difference between two
// bearings, always in [0, 180]
func AngularDifference(a, b float64) float64 {
	diff := math.Abs(NormalizeDegrees(a) - NormalizeDegrees(b))
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// BearingWithinTolerance reports whether a and b are within tolerance degrees
// of each other, handling the 0/360 wraparound
func BearingWithinTolerance(a, b, tolerance float64) bool {
	return AngularDifference(a, b) <= tolerance
}

package utils

import (
	"math"
)

const (
	EarthRadiusKm = 6371.0
	EarthRadiusM  = 6371000.0
	DegToRad      = math.Pi / 180.0
)

// CalculateDistance returns the distance in meters between two coordinates
// using the Haversine formula.
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * DegToRad
	lat2Rad := lat2 * DegToRad

	dlat := (lat2 - lat1) * DegToRad
	dlon := (lon2 - lon1) * DegToRad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// IsValidCoordinate checks latitude/longitude ranges.
func IsValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

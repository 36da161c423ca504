package adsb

import "math"

// earthRadiusNM is the mean Earth radius in nautical miles.
const earthRadiusNM = 3440.065

// Receiver is the fixed location of the ADS-B receiver.
type Receiver struct {
	Latitude  float64
	Longitude float64
}

// DistanceNM returns the great-circle distance from the receiver to the given
// point in nautical miles.
func (r Receiver) DistanceNM(lat, lon float64) float64 {
	return HaversineNM(r.Latitude, r.Longitude, lat, lon)
}

// HaversineNM computes the great-circle distance between two points.
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusNM * c
}

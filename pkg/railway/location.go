package railway

import "math"

const earthRadiusKm = 6371.0

type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" groups:"basic"`
	Longitude float64 `json:"longitude" yaml:"longitude" groups:"basic"`
}

func (l Location) IsZero() bool {
	return l.Latitude == 0 && l.Longitude == 0
}

// DistanceKm is the haversine distance between two locations
func (l Location) DistanceKm(other Location) float64 {
	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - l.Latitude) * math.Pi / 180
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

package traffic

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/s2"
)

const earthRadiusMeters = 6371008.8

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(a, b LatLon) float64 {
	p := s2.LatLngFromDegrees(a.Lat(), a.Lon())
	q := s2.LatLngFromDegrees(b.Lat(), b.Lon())
	return p.Distance(q).Radians() * earthRadiusMeters
}

// TravelTime estimates how long covering meters takes at speedKmh.
func TravelTime(meters, speedKmh float64) time.Duration {
	if speedKmh <= 0 {
		return 0
	}
	secs := meters / (speedKmh * 1000 / 3600)
	return time.Duration(secs * float64(time.Second))
}

// FormatETA renders an advisory arrival estimate rounded up to whole minutes.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "arriving"
	}
	mins := int(math.Ceil(d.Minutes()))
	if mins == 1 {
		return "1 min"
	}
	return fmt.Sprintf("%d min", mins)
}

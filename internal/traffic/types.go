package traffic

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
)

type Status string

const (
	StatusRed   Status = "RED"
	StatusGreen Status = "GREEN"
)

// ParseStatus normalizes a stored status value. Anything that is not green is red.
func ParseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusGreen)) {
		return StatusGreen
	}
	return StatusRed
}

type TrafficSignal struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Status    Status  `json:"status"`
}

// Point is a route waypoint in router order: [lon, lat].
type Point [2]float64

func (p Point) Lon() float64 { return p[0] }
func (p Point) Lat() float64 { return p[1] }

// LatLon flips a router point into the order observers expect.
func (p Point) LatLon() LatLon { return LatLon{p[1], p[0]} }

// LatLon is an outbound coordinate: [lat, lon].
type LatLon [2]float64

func (l LatLon) Lat() float64 { return l[0] }
func (l LatLon) Lon() float64 { return l[1] }

// Route is an ordered list of waypoints as returned by the router.
type Route []Point

// Validate checks that the route is non-empty and every point is a finite,
// in-range coordinate.
func (r Route) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("route has no points")
	}
	for i, p := range r {
		lon, lat := p.Lon(), p.Lat()
		if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
			return fmt.Errorf("point %d is not finite", i)
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return fmt.Errorf("point %d out of range: [%g, %g]", i, lon, lat)
		}
	}
	return nil
}

// Path returns the route in observer order.
func (r Route) Path() []LatLon {
	return lo.Map(r, func(p Point, _ int) LatLon { return p.LatLon() })
}

// LineString is the GeoJSON geometry the router produces and observers draw.
type LineString struct {
	Type        string `json:"type"`
	Coordinates Route  `json:"coordinates"`
}

func NewLineString(r Route) LineString {
	return LineString{Type: "LineString", Coordinates: r}
}

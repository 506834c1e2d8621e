// Package geo holds coordinate value types and the great-circle distance calculator.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Coordinate is an immutable, validated latitude/longitude pair.
type Coordinate struct {
	lat float64
	lng float64
}

// NewCoordinate validates the ranges and builds a Coordinate.
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Coordinate{}, fmt.Errorf("%w: latitude %v outside [-90,90]", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return Coordinate{}, fmt.Errorf("%w: longitude %v outside [-180,180]", ErrInvalidCoordinate, lng)
	}
	return Coordinate{lat: lat, lng: lng}, nil
}

// MustCoordinate is NewCoordinate for literals known to be valid. It panics otherwise.
func MustCoordinate(lat, lng float64) Coordinate {
	c, err := NewCoordinate(lat, lng)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseLatLng parses the "lat,lng" form used on the wire by the matrix service.
func ParseLatLng(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("%w: %q is not a lat,lng pair", ErrInvalidCoordinate, s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: latitude in %q: %v", ErrInvalidCoordinate, s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: longitude in %q: %v", ErrInvalidCoordinate, s, err)
	}
	return NewCoordinate(lat, lng)
}

// Latitude returns the latitude in degrees.
func (c Coordinate) Latitude() float64 { return c.lat }

// Longitude returns the longitude in degrees.
func (c Coordinate) Longitude() float64 { return c.lng }

// String renders the coordinate as "lat,lng".
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.lng, 'f', -1, 64)
}

// Equal reports whether both components match exactly.
func (c Coordinate) Equal(o Coordinate) bool {
	return c.lat == o.lat && c.lng == o.lng
}

// DistanceKm returns the haversine great-circle distance between a and b in kilometres.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := toRadians(a.lat)
	lat2 := toRadians(b.lat)
	dLat := toRadians(b.lat - a.lat)
	dLng := toRadians(b.lng - a.lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// LocationSample is one reading from the location source. A newer sample
// supersedes an older one; samples are never mutated.
type LocationSample struct {
	Coordinate Coordinate
	CapturedAt time.Time
	Address    string // optional reverse-geocoded label
}

// NewLocationSample builds a sample from raw degrees.
func NewLocationSample(lat, lng float64, capturedAt time.Time, address string) (LocationSample, error) {
	c, err := NewCoordinate(lat, lng)
	if err != nil {
		return LocationSample{}, err
	}
	return LocationSample{Coordinate: c, CapturedAt: capturedAt, Address: address}, nil
}

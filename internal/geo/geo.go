// Package geo resolves client IP addresses to coordinates for logins that
// arrive without a location.
package geo

import (
	"fmt"
	"net"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/oschwald/geoip2-golang"
)

// cityReader is the subset of *geoip2.Reader used here
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Resolver looks up coordinates in a MaxMind City database
type Resolver struct {
	reader cityReader
}

// Open loads a GeoIP2/GeoLite2 City database
func Open(path string) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database %s: %w", path, err)
	}
	return &Resolver{reader: reader}, nil
}

// Locate returns the coordinates recorded for ip. Addresses without a usable
// record yield ErrLocationUnavailable.
func (r *Resolver) Locate(ip net.IP) (models.Location, error) {
	if r == nil || ip == nil {
		return models.Location{}, models.ErrLocationUnavailable
	}

	record, err := r.reader.City(ip)
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: %v", models.ErrLocationUnavailable, err)
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 && record.Location.AccuracyRadius == 0 {
		return models.Location{}, models.ErrLocationUnavailable
	}

	return models.Location{
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}, nil
}

// Close releases the database
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	return r.reader.Close()
}

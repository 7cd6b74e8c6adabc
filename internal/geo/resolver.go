// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package geo resolves IP addresses to coordinates and provides the
// great-circle math used by the travel-feasibility checks.
package geo

import (
	"fmt"
	"math"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Location is a resolved geographic position.
type Location struct {
	Latitude  float64
	Longitude float64
	City      string
	Country   string
}

// String returns a human-readable location.
func (l Location) String() string {
	if l.City != "" && l.Country != "" {
		return l.City + ", " + l.Country
	}
	if l.Country != "" {
		return l.Country
	}
	if l.City != "" {
		return l.City
	}
	return "Unknown"
}

// Resolver maps an IP address to a location. Implementations return
// (zero, false, nil) when the address is simply unknown; errors are
// reserved for lookup failures.
type Resolver interface {
	Resolve(ip string) (Location, bool, error)
	Close() error
}

// MaxMindResolver resolves locations from a MaxMind City database.
type MaxMindResolver struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
}

// NewMaxMindResolver opens the City database at path.
func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geoip database %s: %w", path, err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

// Resolve looks up ip in the City database.
func (r *MaxMindResolver) Resolve(ip string) (Location, bool, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, false, fmt.Errorf("invalid ip address %q", ip)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.reader == nil {
		return Location{}, false, fmt.Errorf("resolver closed")
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		return Location{}, false, fmt.Errorf("city lookup for %s: %w", ip, err)
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 && record.Country.IsoCode == "" {
		return Location{}, false, nil
	}

	loc := Location{
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
		Country:   record.Country.IsoCode,
	}
	if name, ok := record.City.Names["en"]; ok {
		loc.City = name
	}
	return loc, true, nil
}

// Close releases the underlying database.
func (r *MaxMindResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}

// StaticResolver serves a fixed IP-to-location table. Used in tests and
// in deployments that annotate events upstream.
type StaticResolver struct {
	mu        sync.RWMutex
	locations map[string]Location
}

// NewStaticResolver returns a resolver over the given table.
func NewStaticResolver(locations map[string]Location) *StaticResolver {
	if locations == nil {
		locations = make(map[string]Location)
	}
	return &StaticResolver{locations: locations}
}

// Set adds or replaces the location for ip.
func (r *StaticResolver) Set(ip string, loc Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[ip] = loc
}

// Resolve returns the table entry for ip.
func (r *StaticResolver) Resolve(ip string) (Location, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.locations[ip]
	return loc, ok, nil
}

// Close is a no-op.
func (r *StaticResolver) Close() error { return nil }

// HaversineKm calculates the great-circle distance between two points
// on Earth using the Haversine formula. Returns distance in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// RequiredSpeedKmh returns the speed needed to cover distanceKm in the
// given number of hours. Returns +Inf for non-positive durations.
func RequiredSpeedKmh(distanceKm, hours float64) float64 {
	if hours <= 0 {
		return math.Inf(1)
	}
	return distanceKm / hours
}

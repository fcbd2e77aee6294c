package rollcall

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIPReader resolves client IPs to a coarse NetworkLocation using a
// MaxMind GeoLite2 City database.
type GeoIPReader struct {
	db *geoip2.Reader
}

// NewGeoIPReader opens a MaxMind GeoLite2-City database.
func NewGeoIPReader(dbPath string) (*GeoIPReader, error) {
	if dbPath == "" {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}
	return &GeoIPReader{db: db}, nil
}

// Lookup returns the network location of an IP address.
func (r *GeoIPReader) Lookup(ip string) (NetworkLocation, error) {
	if r == nil || r.db == nil {
		return NetworkLocation{}, ErrGeoIPDatabaseNotConfigured
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return NetworkLocation{}, fmt.Errorf("%w: %s", ErrInvalidIP, ip)
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return NetworkLocation{}, fmt.Errorf("%w: %v", ErrGeoIPLookupFailed, err)
	}

	return NetworkLocation{
		IP:        ip,
		City:      englishName(record.City.Names),
		Country:   englishName(record.Country.Names),
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}, nil
}

// englishName prefers the English name and falls back to any available one.
func englishName(names map[string]string) string {
	if name, ok := names["en"]; ok {
		return name
	}
	for _, name := range names {
		return name
	}
	return ""
}

// Close closes the GeoIP database.
func (r *GeoIPReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

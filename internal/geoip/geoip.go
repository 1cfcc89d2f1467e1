// Package geoip resolves client addresses to countries using a MaxMind
// GeoLite2 database.
package geoip

import (
	"fmt"

	"github.com/oschwald/geoip2-golang"

	"github.com/phishguard/gateway/internal/netguard"
)

// Country is an ISO code and English display name.
type Country struct {
	Code string
	Name string
}

// Locator looks up countries. A nil *Locator is valid and resolves nothing,
// so callers need no special case when no database is configured.
type Locator struct {
	reader *geoip2.Reader
}

// Open loads the database at path.
func Open(path string) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return &Locator{reader: r}, nil
}

// Country resolves addr ("host:port" or a bare IP). Private and unparsable
// addresses, and addresses missing from the database, return false.
func (l *Locator) Country(addr string) (Country, bool) {
	if l == nil || l.reader == nil {
		return Country{}, false
	}
	ip, ok := netguard.PublicIP(addr)
	if !ok {
		return Country{}, false
	}

	rec, err := l.reader.Country(ip)
	if err != nil || rec.Country.IsoCode == "" {
		return Country{}, false
	}
	name := rec.Country.Names["en"]
	if name == "" {
		name = rec.Country.IsoCode
	}
	return Country{Code: rec.Country.IsoCode, Name: name}, true
}

// Close releases the database.
func (l *Locator) Close() error {
	if l == nil || l.reader == nil {
		return nil
	}
	return l.reader.Close()
}

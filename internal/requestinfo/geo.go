// internal/requestinfo/geo.go
//
// MaxMind country lookup.  The reader is safe for concurrent use and is
// opened once at startup.

package requestinfo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Geo wraps an optional GeoLite2 database.  A nil *Geo answers every
// lookup with "".
type Geo struct {
	db *geoip2.Reader
}

// OpenGeo opens the Country or City database at path.
func OpenGeo(path string) (*Geo, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("requestinfo: open geoip db: %w", err)
	}
	return &Geo{db: db}, nil
}

// Country returns the ISO code for ip, or "" when unknown.
func (g *Geo) Country(ip net.IP) string {
	if g == nil || g.db == nil || ip == nil || ip.IsPrivate() || ip.IsLoopback() {
		return ""
	}
	rec, err := g.db.Country(ip)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

// Close releases the database.
func (g *Geo) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

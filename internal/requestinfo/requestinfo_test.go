package requestinfo

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.6367.91 Safari/537.36"

func TestParseUA(t *testing.T) {
	u := ParseUA(chromeMac)
	assert.Equal(t, "Chrome", u.Browser)
	assert.Equal(t, "Desktop", u.Device)
	assert.False(t, u.IsBot)
	assert.Contains(t, u.Short(), "Chrome/")

	bot := ParseUA("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, bot.IsBot)

	empty := ParseUA("")
	assert.Equal(t, "Other", empty.Device)
}

func TestPrimaryLang(t *testing.T) {
	assert.Equal(t, "zh-tw", primaryLang("zh-TW,zh;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", primaryLang("en;q=0.7"))
	assert.Equal(t, "", primaryLang(""))
}

func TestEnrichStoresInfo(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e := New(WithClock(func() time.Time { return at }))

	var got *Info
	h := e.Enrich(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	req.Header.Set("User-Agent", chromeMac)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "203.0.113.9", got.IP)
	assert.Equal(t, "en-us", got.Lang)
	assert.Equal(t, at, got.Timestamp)
	assert.Empty(t, got.Country, "no geo database configured")
}

func TestForwardedHeadersNeedTrust(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:443"
	req.Header.Set("X-Forwarded-For", "garbage, 198.51.100.7, 10.0.0.1")

	assert.Equal(t, "10.0.0.2", New().Build(req).IP)
	assert.Equal(t, "198.51.100.7", New(TrustProxy(true)).Build(req).IP)

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-Ip", "198.51.100.8")
	assert.Equal(t, "198.51.100.8", New(TrustProxy(true)).Build(req).IP)
}

func TestClientIPWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, FromContext(req.Context()))
	assert.Equal(t, "", ClientIP(req.Context()))
}

func TestNilGeoIsSafe(t *testing.T) {
	var g *Geo
	assert.Equal(t, "", g.Country(nil))
	assert.NoError(t, g.Close())
	_, err := OpenGeo("/nonexistent/GeoLite2-Country.mmdb")
	assert.Error(t, err)
}

package compose

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"

	"github.com/petr-muller/civicfeed/internal/civic/api"
)

// DefaultGeocoderHost is the reverse geocoding service
const DefaultGeocoderHost = "https://nominatim.openstreetmap.org"

// Geolocation error codes, as reported by position providers
const (
	GeolocationPermissionDenied    = 1
	GeolocationPositionUnavailable = 2
	GeolocationTimeout             = 3
)

// GeolocationError is returned by a Locator that could not determine a position
type GeolocationError struct {
	Code int
}

func (e *GeolocationError) Error() string {
	switch e.Code {
	case GeolocationPermissionDenied:
		return "Location permission denied. Enable location services and retry."
	case GeolocationTimeout:
		return "Location request timed out. Please retry."
	}
	return "Unable to fetch location. Please retry."
}

// Coordinates is a position in degrees
type Coordinates struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinates are a real position on the globe
func (c Coordinates) Valid() bool {
	return s2.LatLngFromDegrees(c.Lat, c.Lng).IsValid()
}

// MapURL links to a map preview of the position
func (c Coordinates) MapURL() string {
	return fmt.Sprintf("https://maps.google.com/?q=%s,%s",
		strconv.FormatFloat(c.Lat, 'f', -1, 64), strconv.FormatFloat(c.Lng, 'f', -1, 64))
}

// Fallback is the location text used when no address is known
func (c Coordinates) Fallback() string {
	return fmt.Sprintf("Lat %.5f, Lng %.5f", c.Lat, c.Lng)
}

// Locator determines the current position of the reporter
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// FixedLocator reports a position given up front, such as from flags
type FixedLocator struct {
	Coordinates *Coordinates
}

// Locate implements Locator
func (f FixedLocator) Locate(context.Context) (Coordinates, error) {
	if f.Coordinates == nil {
		return Coordinates{}, &GeolocationError{Code: GeolocationPositionUnavailable}
	}
	if !f.Coordinates.Valid() {
		return Coordinates{}, fmt.Errorf("invalid coordinates %v,%v", f.Coordinates.Lat, f.Coordinates.Lng)
	}
	return *f.Coordinates, nil
}

// Geocoder turns coordinates into a human-readable address
type Geocoder struct {
	client *api.Client
}

// NewGeocoder creates a geocoder against host, DefaultGeocoderHost when empty
func NewGeocoder(host string, opts ...api.Option) *Geocoder {
	if host == "" {
		host = DefaultGeocoderHost
	}
	return &Geocoder{client: api.NewClient(host, opts...)}
}

type reverseResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// Reverse resolves the address of c. Lookup failures are reported together
// with the coordinate fallback text so that callers can still fill the form.
func (g *Geocoder) Reverse(ctx context.Context, c Coordinates) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.Lng, 'f', -1, 64))
	q.Set("format", "json")
	q.Set("addressdetails", "1")

	var resp reverseResponse
	if err := g.client.Do(ctx, http.MethodGet, "/reverse?"+q.Encode(), nil, "", &resp); err != nil {
		return c.Fallback(), fmt.Errorf("reverse geocoding failed: %w", err)
	}
	return composeAddress(resp, c), nil
}

func composeAddress(resp reverseResponse, c Coordinates) string {
	a := resp.Address
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(a[k]); v != "" {
				return v
			}
		}
		return ""
	}

	var parts []string
	for _, p := range []string{
		pick("road"),
		pick("neighbourhood", "suburb"),
		pick("city", "town", "village"),
		pick("state_district", "state"),
		pick("postcode"),
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if name := strings.TrimSpace(resp.DisplayName); name != "" {
		return name
	}
	return c.Fallback()
}

package location

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Onboarding placeholder the host writes before the user picks a real home.
const (
	DefaultHomeLatitude  = 52.3731339
	DefaultHomeLongitude = 4.8903147
)

var ErrHomeNotSet = errors.New("no home location has been set")

// Coordinates are kept as strings since they are embedded verbatim in the
// request path and compared to detect a change.
type Coordinates struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

func NewCoordinates(lat, lon float64) Coordinates {
	return Coordinates{
		Latitude:  strconv.FormatFloat(lat, 'f', -1, 64),
		Longitude: strconv.FormatFloat(lon, 'f', -1, 64),
	}
}

func (c Coordinates) IsZero() bool {
	return c.Latitude == "" && c.Longitude == ""
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%s,%s", c.Latitude, c.Longitude)
}

// HomeIsSet reports whether lat/lon look like a home location the user
// actually configured.
func HomeIsSet(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if lat == DefaultHomeLatitude && lon == DefaultHomeLongitude {
		return false
	}
	return true
}

// Resolver remembers the last coordinates used so callers can tell whether
// a refresh is needed.
type Resolver struct {
	mu      sync.Mutex
	current Coordinates
	set     bool
}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve picks the home location when trackHome is set, otherwise the
// configured one, and reports whether it differs from the stored value.
func (r *Resolver) Resolve(trackHome bool, configuredLat, configuredLon, homeLat, homeLon float64) (Coordinates, bool) {
	var c Coordinates
	if trackHome {
		c = NewCoordinates(homeLat, homeLon)
	} else {
		c = NewCoordinates(configuredLat, configuredLon)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.set && r.current == c {
		return c, false
	}
	r.current = c
	r.set = true
	return c, true
}

func (r *Resolver) Current() (Coordinates, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.set
}

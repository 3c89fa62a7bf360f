package types

import (
	"time"

	"github.com/icodeforyou/meteoam-go/location"
)

// ForecastPoint is one column of the meteogram. Values holds every numeric
// parameter present for that timestamp, keyed by the API parameter name.
type ForecastPoint struct {
	LocalDateTime string             `json:"localDateTime"`
	Values        map[string]float64 `json:"values"`
	Icon          string             `json:"icon,omitempty"`
}

func (p ForecastPoint) Value(param string) (float64, bool) {
	v, ok := p.Values[param]
	return v, ok
}

type CurrentWeather = ForecastPoint

type DailyForecast struct {
	LocalDateTime time.Time `json:"localDateTime"`
	MaxCelsius    float64   `json:"maxCelsius"`
	MinCelsius    float64   `json:"minCelsius"`
	MaxFahrenheit float64   `json:"maxFahrenheit"`
	MinFahrenheit float64   `json:"minFahrenheit"`
	Icon          string    `json:"icon"`
}

// Snapshot is the normalized result of one successful refresh. It is
// replaced as a whole and never modified after it has been published.
type Snapshot struct {
	Coordinates location.Coordinates `json:"coordinates"`
	FetchedAt   time.Time            `json:"fetchedAt"`
	Current     CurrentWeather       `json:"current"`
	Hourly      []ForecastPoint      `json:"hourly"`
	Daily       []DailyForecast      `json:"daily"`
}

func (s Snapshot) IsZero() bool {
	return s.FetchedAt.IsZero()
}

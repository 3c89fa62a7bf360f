package entity

import (
	"time"

	"github.com/icodeforyou/meteoam-go/location"
	"github.com/icodeforyou/meteoam-go/slice"
	"github.com/icodeforyou/meteoam-go/types"
	"github.com/icodeforyou/meteoam-go/types/maybe"
)

const (
	DefaultName = "MeteoAM"
	Attribution = "Weather forecast from meteoam.it, delivered by the Aereonautica Militare."

	TemperatureUnit   = "°C"
	PrecipitationUnit = "mm"
	PressureUnit      = "hPa"
	WindSpeedUnit     = "km/h"
)

type Options struct {
	Name      string
	TrackHome bool
	HomeName  string
	Latitude  float64
	Longitude float64
}

// Descriptor identifies one weather entity. The hourly variant exists for
// older setups and is disabled unless enabled explicitly.
type Descriptor struct {
	Name             string `json:"name"`
	UniqueID         string `json:"uniqueId"`
	Hourly           bool   `json:"hourly"`
	EnabledByDefault bool   `json:"enabledByDefault"`
}

func Describe(o Options, hourly bool) Descriptor {
	appendix, idAppendix := "", ""
	if hourly {
		appendix, idAppendix = " hourly", "-hourly"
	}

	name := DefaultName
	switch {
	case o.Name != "":
		name = o.Name
	case o.TrackHome:
		name = o.HomeName
	}

	id := "home"
	if !o.TrackHome {
		c := location.NewCoordinates(o.Latitude, o.Longitude)
		id = c.Latitude + "-" + c.Longitude
	}

	return Descriptor{
		Name:             name + appendix,
		UniqueID:         id + idAppendix,
		Hourly:           hourly,
		EnabledByDefault: !hourly,
	}
}

// HomeDescriber describes entities using the home name as it is now. The
// home location can be renamed while running.
type HomeDescriber struct {
	options Options
	home    *location.Home
}

func NewHomeDescriber(o Options, home *location.Home) *HomeDescriber {
	return &HomeDescriber{options: o, home: home}
}

func (d *HomeDescriber) Describe(hourly bool) Descriptor {
	o := d.options
	if d.home != nil {
		o.HomeName = d.home.Name()
	}
	return Describe(o, hourly)
}

type Units struct {
	Temperature   string `json:"temperature"`
	Precipitation string `json:"precipitation"`
	Pressure      string `json:"pressure"`
	WindSpeed     string `json:"windSpeed"`
}

// Weather is the state of an entity as exposed over HTTP, MQTT and the
// websocket.
type Weather struct {
	Descriptor
	Available     bool                 `json:"available"`
	Condition     maybe.Maybe[string]  `json:"condition"`
	Temperature   maybe.Maybe[float64] `json:"temperature"`
	Pressure      maybe.Maybe[float64] `json:"pressure"`
	Humidity      maybe.Maybe[float64] `json:"humidity"`
	WindSpeed     maybe.Maybe[float64] `json:"windSpeed"`
	WindBearing   maybe.Maybe[float64] `json:"windBearing"`
	WindGustSpeed maybe.Maybe[float64] `json:"windGustSpeed"`
	CloudCoverage maybe.Maybe[float64] `json:"cloudCoverage"`
	DewPoint      maybe.Maybe[float64] `json:"dewPoint"`
	Units         Units                `json:"units"`
	Attribution   string               `json:"attribution"`
	LastUpdate    time.Time            `json:"lastUpdate,omitzero"`
	LastError     string               `json:"lastError,omitempty"`
	Forecast      []map[string]any     `json:"forecast"`
}

func attribute(current types.CurrentWeather, attr string) maybe.Maybe[float64] {
	v, ok := current.Value(AttrMap[attr])
	return maybe.SqlNull(v, ok)
}

// NewWeather projects snap onto d. ok tells whether there is a snapshot at
// all, lastErr is the outcome of the latest refresh.
func NewWeather(d Descriptor, snap types.Snapshot, ok bool, lastErr error) Weather {
	w := Weather{
		Descriptor: d,
		Available:  ok,
		Units: Units{
			Temperature:   TemperatureUnit,
			Precipitation: PrecipitationUnit,
			Pressure:      PressureUnit,
			WindSpeed:     WindSpeedUnit,
		},
		Attribution: Attribution,
		Forecast:    []map[string]any{},
	}
	if lastErr != nil {
		w.LastError = "update failed: " + lastErr.Error()
	}
	if !ok {
		return w
	}

	current := snap.Current
	if current.Icon != "" {
		w.Condition = maybe.Some(FormatCondition(current.Icon))
	}
	w.Temperature = attribute(current, AttrTemperature)
	w.Pressure = attribute(current, AttrPressure)
	w.Humidity = attribute(current, AttrHumidity)
	w.WindSpeed = attribute(current, AttrWindSpeed)
	w.WindBearing = attribute(current, AttrWindBearing)
	w.WindGustSpeed = attribute(current, AttrWindGustSpeed)
	w.CloudCoverage = attribute(current, AttrCloudCoverage)
	w.DewPoint = attribute(current, AttrDewPoint)
	w.LastUpdate = snap.FetchedAt
	w.Forecast = Forecast(snap, d.Hourly)

	return w
}

func hourlyItem(p types.ForecastPoint) map[string]any {
	item := make(map[string]any, len(p.Values)+2)
	item[keyLocalDateTime] = p.LocalDateTime
	for k, v := range p.Values {
		item[k] = v
	}
	if p.Icon != "" {
		item[keyIcon] = p.Icon
	}
	return item
}

func dailyItem(d types.DailyForecast) map[string]any {
	return map[string]any{
		keyLocalDateTime:  d.LocalDateTime.Format(time.RFC3339),
		keyTemp:           d.MaxCelsius,
		keyTempMin:        d.MinCelsius,
		keyTempFahrenheit: d.MaxFahrenheit,
		keyTempFahrenMin:  d.MinFahrenheit,
		keyIcon:           d.Icon,
	}
}

var requiredKeys = []string{keyLocalDateTime, keyTemp}

func hasRequiredKeys(item map[string]any) bool {
	return slice.All(requiredKeys, func(key string) bool {
		_, ok := item[key]
		return ok
	})
}

// Forecast returns the hourly or daily forecast with forecast attribute
// names as keys. Items without a time or a temperature are left out.
func Forecast(snap types.Snapshot, hourly bool) []map[string]any {
	var raw []map[string]any
	if hourly {
		raw = slice.Map(snap.Hourly, hourlyItem)
	} else {
		raw = slice.Map(snap.Daily, dailyItem)
	}

	return slice.Map(slice.Filter(raw, hasRequiredKeys), func(item map[string]any) map[string]any {
		out := make(map[string]any, len(ForecastMap))
		for attr, key := range ForecastMap {
			if v, ok := item[key]; ok && v != nil {
				out[attr] = v
			}
		}
		if code, ok := out[ForecastCondition].(string); ok && code != "" {
			out[ForecastCondition] = FormatCondition(code)
		}
		return out
	})
}

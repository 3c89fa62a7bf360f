package meteoam

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/icodeforyou/meteoam-go/types"
	"github.com/icodeforyou/meteoam-go/wallclock"
)

// Normalize turns a meteogram payload into a snapshot. Points at or after
// now go to the hourly forecast, the last point at or before now becomes
// the current weather. A point exactly at now ends up in both. Times are
// compared on their wall clock reading, offsets are ignored.
//
// Coordinates are left for the caller to fill in.
func Normalize(p Payload, now time.Time) (types.Snapshot, error) {
	if len(p) == 0 {
		return types.Snapshot{}, parseError(errors.New("empty payload"), "decoding")
	}

	var m meteogram
	if err := json.Unmarshal(p, &m); err != nil {
		return types.Snapshot{}, parseError(err, "decoding")
	}

	daily, err := dailyForecast(m)
	if err != nil {
		return types.Snapshot{}, err
	}

	current, hourly, err := hourlyForecast(m, now)
	if err != nil {
		return types.Snapshot{}, err
	}

	return types.Snapshot{
		FetchedAt: now,
		Current:   current,
		Hourly:    hourly,
		Daily:     daily,
	}, nil
}

func dailyForecast(m meteogram) ([]types.DailyForecast, error) {
	if m.ExtraInfo == nil || m.ExtraInfo.Stats == nil {
		return nil, parseError(nil, "missing key extrainfo.stats")
	}

	result := make([]types.DailyForecast, 0, len(m.ExtraInfo.Stats))
	for idx, stat := range m.ExtraInfo.Stats {
		raw, ok := stat["localDate"]
		if !ok {
			return nil, parseError(nil, "missing key extrainfo.stats[%d].localDate", idx)
		}
		var localDate string
		if err := json.Unmarshal(raw, &localDate); err != nil {
			return nil, parseError(err, "extrainfo.stats[%d].localDate", idx)
		}
		stamp, err := wallclock.Parse(localDate)
		if err != nil {
			return nil, parseError(err, "extrainfo.stats[%d].localDate", idx)
		}

		entry := types.DailyForecast{LocalDateTime: stamp.Time}
		fields := []struct {
			key  string
			dest *float64
		}{
			{"maxCelsius", &entry.MaxCelsius},
			{"minCelsius", &entry.MinCelsius},
			{"maxFahrenheit", &entry.MaxFahrenheit},
			{"minFahrenheit", &entry.MinFahrenheit},
		}
		for _, f := range fields {
			raw, ok := stat[f.key]
			if !ok {
				return nil, parseError(nil, "missing key extrainfo.stats[%d].%s", idx, f.key)
			}
			if isNull(raw) {
				continue
			}
			v, err := number(raw)
			if err != nil {
				return nil, parseError(err, "extrainfo.stats[%d].%s", idx, f.key)
			}
			*f.dest = v
		}

		raw, ok = stat["icon"]
		if !ok {
			return nil, parseError(nil, "missing key extrainfo.stats[%d].icon", idx)
		}
		if entry.Icon, err = iconCode(raw); err != nil {
			return nil, parseError(err, "extrainfo.stats[%d].icon", idx)
		}

		result = append(result, entry)
	}

	return result, nil
}

func hourlyForecast(m meteogram, now time.Time) (types.CurrentWeather, []types.ForecastPoint, error) {
	var current types.CurrentWeather
	if m.Timeseries == nil {
		return current, nil, parseError(nil, "missing key timeseries")
	}
	if m.Paramlist == nil {
		return current, nil, parseError(nil, "missing key paramlist")
	}
	dataset, ok := m.Datasets["0"]
	if !ok {
		return current, nil, parseError(nil, "missing key datasets.0")
	}

	hourly := make([]types.ForecastPoint, 0, len(m.Timeseries))
	for tidx, ts := range m.Timeseries {
		stamp, err := wallclock.Parse(ts)
		if err != nil {
			return current, nil, parseError(err, "timeseries[%d]", tidx)
		}

		point := types.ForecastPoint{
			LocalDateTime: stamp.IsoString(),
			Values:        make(map[string]float64, len(m.Paramlist)),
		}
		for pidx, param := range m.Paramlist {
			series, ok := dataset[strconv.Itoa(pidx)]
			if !ok {
				return current, nil, parseError(nil, "missing key datasets.0.%d (%s)", pidx, param)
			}
			raw, ok := series[strconv.Itoa(tidx)]
			if !ok {
				return current, nil, parseError(nil, "missing key datasets.0.%d.%d (%s)", pidx, tidx, param)
			}
			if isNull(raw) {
				continue
			}

			if param == ParamIcon {
				if point.Icon, err = iconCode(raw); err != nil {
					return current, nil, parseError(err, "datasets.0.%d.%d (%s)", pidx, tidx, param)
				}
				continue
			}

			v, err := number(raw)
			if err != nil {
				return current, nil, parseError(err, "datasets.0.%d.%d (%s)", pidx, tidx, param)
			}
			point.Values[param] = v
		}

		cmp := wallclock.Compare(stamp.Time, now)
		if cmp >= 0 {
			hourly = append(hourly, point)
		}
		if cmp <= 0 {
			current = point
		}
	}

	return current, hourly, nil
}

package www

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/icodeforyou/meteoam-go/entity"
	"github.com/icodeforyou/meteoam-go/task"
)

// NewWeatherHandler serves the daily entity, or the hourly one with ?hourly=true.
func NewWeatherHandler(logger *slog.Logger, weather WeatherSource, describer Describer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		hourly, _ := strconv.ParseBool(r.URL.Query().Get("hourly"))
		descriptor := describer.Describe(hourly)

		snap, ok := weather.Snapshot()
		writeJSON(logger, w, http.StatusOK, entity.NewWeather(descriptor, snap, ok, weather.LastError()))
	}
}

func NewForecastHandler(logger *slog.Logger, weather WeatherSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var hourly bool
		switch r.PathValue("kind") {
		case "daily":
			hourly = false
		case "hourly":
			hourly = true
		default:
			http.Error(w, "Unknown forecast type", http.StatusNotFound)
			return
		}

		snap, _ := weather.Snapshot()
		writeJSON(logger, w, http.StatusOK, entity.Forecast(snap, hourly))
	}
}

func NewSnapshotHandler(logger *slog.Logger, weather WeatherSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap, ok := weather.Snapshot()
		if !ok {
			http.Error(w, "No weather data yet", http.StatusNotFound)
			return
		}
		writeJSON(logger, w, http.StatusOK, snap)
	}
}

func NewStatusHandler(logger *slog.Logger, weather WeatherSource, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		writeJSON(logger, w, http.StatusOK, struct {
			Version string `json:"version"`
			task.Status
		}{
			Version: version,
			Status:  weather.Status(),
		})
	}
}

func NewRefreshHandler(logger *slog.Logger, history HistorySource, task func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rows, err := history.GetRefreshes(r.Context(), intOrDefault(r.URL, "limit", 24))
			if err != nil {
				logger.Error("handling refresh get request", slog.Any("error", err))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(logger, w, http.StatusOK, rows)

		case http.MethodPost:
			go task()
			w.WriteHeader(http.StatusAccepted)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

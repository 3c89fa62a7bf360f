package www

import (
	"log/slog"
	"net/http"

	"github.com/icodeforyou/meteoam-go/database"
	"github.com/icodeforyou/meteoam-go/logging"
)

func NewLogHandler(logger *slog.Logger, history HistorySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		page := intOrDefault(r.URL, "page", 1)
		pageSize := intOrDefault(r.URL, "pageSize", 25)
		minLevel := slog.LevelDebug
		if level := r.URL.Query().Get("level"); level != "" {
			l, err := logging.ParseLevel(level)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			minLevel = l
		}

		e, err := history.GetLogEntries(r.Context(), minLevel, page, pageSize)
		if err != nil {
			logger.Error("handling log request", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if e == nil {
			e = []database.LogEntryRow{}
		}

		writeJSON(logger, w, http.StatusOK, struct {
			Page     int                    `json:"page"`
			PageSize int                    `json:"pageSize"`
			Entries  []database.LogEntryRow `json:"entries"`
		}{
			Page:     page,
			PageSize: pageSize,
			Entries:  e,
		})
	}
}

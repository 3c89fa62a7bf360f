package www

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/icodeforyou/meteoam-go/config"
	"github.com/icodeforyou/meteoam-go/database"
	"github.com/icodeforyou/meteoam-go/entity"
	"github.com/icodeforyou/meteoam-go/task"
	"github.com/icodeforyou/meteoam-go/types"
)

// WeatherSource is the read side of the refresh coordinator.
type WeatherSource interface {
	Snapshot() (types.Snapshot, bool)
	LastError() error
	Status() task.Status
}

type Describer interface {
	Describe(hourly bool) entity.Descriptor
}

type HistorySource interface {
	GetLogEntries(ctx context.Context, minLvl slog.Level, page, pageSize int) ([]database.LogEntryRow, error)
	GetRefreshes(ctx context.Context, limit int) ([]database.RefreshRow, error)
}

type Server struct {
	logger  *slog.Logger
	config  config.AppConfigApi
	weather WeatherSource
	entity  Describer
	hub     *Hub
	mux     *http.ServeMux
}

func NewServer(
	weather WeatherSource,
	history HistorySource,
	describer Describer,
	refreshTask func(),
	config config.AppConfigApi,
	version string,
) *Server {
	logger := slog.Default().With("module", "www")

	s := &Server{
		logger:  logger,
		config:  config,
		weather: weather,
		entity:  describer,
		hub:     NewHub(logger),
		mux:     http.NewServeMux(),
	}

	go s.hub.Run()

	logReqMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.String("remoteAddr", r.RemoteAddr))
			next.ServeHTTP(w, r)
		})
	}

	s.mux.Handle("/api/weather", logReqMW(NewWeatherHandler(
		logger.With(slog.String("handler", "weather")),
		weather,
		describer)))

	s.mux.Handle("/api/forecast/{kind}", logReqMW(NewForecastHandler(
		logger.With(slog.String("handler", "forecast")),
		weather)))

	s.mux.Handle("/api/snapshot", logReqMW(NewSnapshotHandler(
		logger.With(slog.String("handler", "snapshot")),
		weather)))

	s.mux.Handle("/api/status", logReqMW(NewStatusHandler(
		logger.With(slog.String("handler", "status")),
		weather,
		version)))

	s.mux.Handle("/api/refresh", logReqMW(NewRefreshHandler(
		logger.With(slog.String("handler", "refresh")),
		history,
		refreshTask)))

	s.mux.Handle("/api/log", logReqMW(NewLogHandler(
		logger.With(slog.String("handler", "log")),
		history)))

	s.mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get("User-Agent")
		client, err := NewClient(s.hub, w, r, name)
		if err != nil {
			s.logger.Error("new websocket client failed", slog.Any("error", err))
			return
		}
		if msg, err := s.stateMessage(); err == nil {
			client.send <- msg
		}
		s.hub.Register <- client
		go client.WritePump()
		go client.ReadPump()
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) stateMessage() ([]byte, error) {
	snap, ok := s.weather.Snapshot()
	return json.Marshal(entity.NewWeather(s.entity.Describe(false), snap, ok, s.weather.LastError()))
}

// BroadcastState pushes the current entity state to every websocket client.
func (s *Server) BroadcastState() {
	msg, err := s.stateMessage()
	if err != nil {
		s.logger.Error("encoding state failed", slog.Any("error", err))
		return
	}
	s.hub.Broadcast <- msg
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting server...", "port", s.config.Port)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErrors := make(chan error, 1)
	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", slog.Any("error", err))
			return err
		}
		return nil
	}
}

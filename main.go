package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/icodeforyou/meteoam-go/config"
	"github.com/icodeforyou/meteoam-go/database"
	"github.com/icodeforyou/meteoam-go/entity"
	"github.com/icodeforyou/meteoam-go/location"
	"github.com/icodeforyou/meteoam-go/logging"
	"github.com/icodeforyou/meteoam-go/meteoam"
	"github.com/icodeforyou/meteoam-go/mqtt"
	"github.com/icodeforyou/meteoam-go/task"
	"github.com/icodeforyou/meteoam-go/www"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Sprintf("failed to load .env file: %v", err))
	}

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	source, err := config.NewSource(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	cnfg, err := source.Config()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cnfg.Logging.GetConsoleLevel(),
		TimeFormat: time.RFC3339,
	})
	slog.New(consoleHandler).Debug("meteoam is starting...", slog.String("version", Version))

	db, err := database.New(ctx, cnfg.Database.Path,
		database.WithBackups(cnfg.Database.GetBackupDir(), cnfg.Database.GetBackupName()))
	if err != nil {
		panic(fmt.Sprintf("failed to connect to database: %v", err))
	}
	defer db.Close()

	logger := slog.New(logging.NewMultiHandler(
		consoleHandler,
		logging.NewSQLiteHandler(db, cnfg.Logging.GetDbLevel(), cnfg.Logging.GetDbAttrsFormat())))
	slog.SetDefault(logger)

	db.SetLogger(logger.With("module", "database"))

	home := location.NewHome(cnfg.Home.Name, cnfg.Home.Latitude, cnfg.Home.Longitude)
	if cnfg.Weather.TrackHome && !location.HomeIsSet(home.Get()) {
		exitWithError(logger, location.ErrHomeNotSet)
	}

	client := meteoam.NewClient(
		logger.With("module", "meteoam"),
		meteoam.WithURLTemplate(cnfg.Weather.URLTemplate),
		meteoam.WithTimeout(cnfg.Weather.Timeout),
		meteoam.WithBreaker(cnfg.Weather.BreakerFailures, cnfg.Weather.BreakerOpenFor))

	tasks := task.NewTasks(db, client, home, cnfg)

	describer := entity.NewHomeDescriber(entity.Options{
		Name:      cnfg.Weather.GetName(),
		TrackHome: cnfg.Weather.TrackHome,
		Latitude:  cnfg.Weather.Latitude,
		Longitude: cnfg.Weather.Longitude,
	}, home)

	server := www.NewServer(tasks.Coordinator, db, describer, tasks.RefreshTask, cnfg.Api, Version)

	var bridge *mqtt.Bridge
	if cnfg.Mqtt.Enabled {
		bridge = mqtt.New(
			cnfg.Mqtt.Host,
			cnfg.Mqtt.Port,
			cnfg.Mqtt.Username,
			cnfg.Mqtt.Password,
			cnfg.Mqtt.TopicPrefix)
		bridge.OnHomeMessage = func(msg *mqtt.HomeMessage) {
			home.Set(msg.Name, *msg.Latitude, *msg.Longitude)
		}
		bridge.OnRefreshRequest = func() {
			go tasks.RefreshTask()
		}

		if isDevMode() {
			logger.Info("dev mode, skipping mqtt connection")
		} else {
			if err := bridge.Connect(); err != nil {
				panic(fmt.Sprintf("mqtt connection error: %v", err))
			}
			defer bridge.Disconnect()
		}
	}

	publishState := func() {
		server.BroadcastState()
		if bridge == nil || isDevMode() {
			return
		}
		snap, ok := tasks.Coordinator.Snapshot()
		state := entity.NewWeather(describer.Describe(false), snap, ok, tasks.Coordinator.LastError())
		if err := bridge.PublishState(state); err != nil {
			logger.Error("publishing state failed", slog.Any("error", err))
		}
	}

	// A renamed home shows up without waiting for the next refresh.
	if cnfg.Weather.TrackHome {
		home.Subscribe(func() { go publishState() })
	}

	tasks.Coordinator.Subscribe(func(u task.Update) {
		publishState()
		if bridge == nil || isDevMode() {
			return
		}

		status := mqtt.StatusMessage{OK: u.Outcome == task.Succeeded, At: u.At}
		if u.Err != nil {
			status.Error = u.Err.Error()
		}
		if err := bridge.PublishStatus(status); err != nil {
			logger.Error("publishing status failed", slog.Any("error", err))
		}
	})

	source.Watch(logger.With("module", "config"), func(c *config.AppConfig) {
		home.Set(c.Home.Name, c.Home.Latitude, c.Home.Longitude)
	})

	if isDevMode() {
		logger.Info("dev mode, skipping task scheduling")
	} else {
		tasks.Run(ctx)
		defer tasks.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			logger.Info("main context done")
		case sig := <-sigCh:
			logger.Info("received signal", slog.Any("signal", sig))
			cancel()
		}
		return nil
	})
	g.Go(func() error {
		return server.Run(gCtx)
	})

	if err := g.Wait(); err != nil {
		exitWithError(logger, err)
	}
}

func isDevMode() bool {
	return strings.EqualFold(os.Getenv("APP_ENV"), "development")
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	if syncer, ok := logger.Handler().(interface{ Sync() error }); ok {
		if syncErr := syncer.Sync(); syncErr != nil {
			logger.Error("failed to flush logger", slog.Any("error", syncErr))
		}
	}

	time.Sleep(2 * time.Second)
	os.Exit(1)
}

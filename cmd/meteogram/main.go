package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/icodeforyou/meteoam-go/config"
	"github.com/icodeforyou/meteoam-go/location"
	"github.com/icodeforyou/meteoam-go/meteoam"
	"github.com/icodeforyou/meteoam-go/types"
	"github.com/lmittmann/tint"
)

// Fetches a meteogram once and prints the normalized snapshot.
func main() {
	configPath := flag.String("config", "", "config file to take the weather settings from")
	lat := flag.Float64("lat", 41.9028, "latitude, ignored with -config")
	lon := flag.Float64("lon", 12.4964, "longitude, ignored with -config")
	timeout := flag.Duration("timeout", 60*time.Second, "request timeout")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339Nano,
	}))

	opts := []meteoam.Option{meteoam.WithTimeout(*timeout)}
	coords := location.NewCoordinates(*lat, *lon)
	if *configPath != "" {
		cnfg, err := config.Load(*configPath)
		if err != nil {
			logger.Error("loading config failed", slog.Any("error", err))
			os.Exit(1)
		}
		w := cnfg.Weather
		opts = append(opts, meteoam.WithURLTemplate(w.URLTemplate), meteoam.WithTimeout(w.Timeout))
		coords = location.NewCoordinates(w.Latitude, w.Longitude)
		if w.TrackHome {
			coords = location.NewCoordinates(cnfg.Home.Latitude, cnfg.Home.Longitude)
		}
	}

	client := meteoam.NewClient(logger, opts...)
	payload, err := client.Fetch(context.Background(), coords)
	if err != nil {
		logger.Error("fetch failed", slog.Any("error", err))
		os.Exit(1)
	}

	snap, err := meteoam.Normalize(payload, time.Now())
	if err != nil {
		logger.Error("normalize failed", slog.Any("error", err))
		os.Exit(1)
	}

	snap.Coordinates = coords

	fmt.Printf("Coordinates: %s\n", snap.Coordinates)
	fmt.Printf("Now: %s\n", formatPoint(snap.Current))
	for _, p := range snap.Hourly {
		fmt.Printf("Hour: %s\n", formatPoint(p))
	}
	for _, d := range snap.Daily {
		fmt.Printf("Date: %s, Max: %.1f, Min: %.1f, Icon: %s\n",
			d.LocalDateTime.Format("2006-01-02"), d.MaxCelsius, d.MinCelsius, d.Icon)
	}
}

func formatPoint(p types.ForecastPoint) string {
	keys := make([]string, 0, len(p.Values))
	for k := range p.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(p.LocalDateTime)
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s: %g", k, p.Values[k])
	}
	if p.Icon != "" {
		fmt.Fprintf(&b, ", icon: %s", p.Icon)
	}
	return b.String()
}

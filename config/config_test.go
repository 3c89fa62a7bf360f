package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/meteoam.db
home:
  name: Roma
  latitude: 41.9
  longitude: 12.5
weather:
  track_home: true
  latitude: 45.46
  longitude: 9.19
logging:
  console_level: debug
`)

	t.Setenv("METEOAM_WEATHER_LATITUDE", "40.85")
	t.Setenv("HOME", "/home/someone")
	t.Setenv("WEATHER_LONGITUDE", "1.23")

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	t.Run("Weather", func(t *testing.T) {
		if !config.Weather.TrackHome {
			t.Errorf("Expected track_home true")
		}
		if config.Weather.Latitude != 40.85 {
			t.Errorf("Expected latitude from env 40.85, got %f", config.Weather.Latitude)
		}
		if config.Weather.Longitude != 9.19 {
			t.Errorf("Expected unprefixed env to be ignored, got longitude %f", config.Weather.Longitude)
		}
		if config.Weather.GetName() != "" {
			t.Errorf("Expected no name, got %q", config.Weather.GetName())
		}
	})

	t.Run("Home", func(t *testing.T) {
		expected := AppConfigHome{Name: "Roma", Latitude: 41.9, Longitude: 12.5}
		if config.Home != expected {
			t.Errorf("Expected home %+v with $HOME set, got %+v", expected, config.Home)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		if config.Weather.Timeout != 60*time.Second {
			t.Errorf("Expected timeout 60s, got %v", config.Weather.Timeout)
		}
		if !strings.HasPrefix(config.Weather.URLTemplate, "https://api.meteoam.it/") {
			t.Errorf("Unexpected url template %q", config.Weather.URLTemplate)
		}
		if config.Refresh.MinInterval != 55*time.Minute || config.Refresh.MaxInterval != 65*time.Minute {
			t.Errorf("Unexpected refresh interval %v-%v", config.Refresh.MinInterval, config.Refresh.MaxInterval)
		}
		if config.Weather.BreakerFailures != 5 || config.Weather.BreakerOpenFor != 5*time.Minute {
			t.Errorf("Unexpected breaker settings %+v", config.Weather)
		}
		if config.Mqtt.Enabled || config.Mqtt.TopicPrefix != "meteoam" || config.Mqtt.Port != 1883 {
			t.Errorf("Unexpected mqtt settings %+v", config.Mqtt)
		}
		if config.Maintenance.RunAt != "30 2 * * *" {
			t.Errorf("Unexpected maintenance schedule %q", config.Maintenance.RunAt)
		}
		if config.Database.GetBackupRetentionDays() != 30 {
			t.Errorf("Expected 30 backup retention days, got %d", config.Database.GetBackupRetentionDays())
		}
		if config.Database.GetBackupDir() != "" || config.Database.GetBackupName() != "meteoam" {
			t.Errorf("Unexpected backup location %q %q", config.Database.GetBackupDir(), config.Database.GetBackupName())
		}
		if config.Logging.GetDbMaxEntries() != 10000 {
			t.Errorf("Expected 10000 log entries, got %d", config.Logging.GetDbMaxEntries())
		}
		if config.Logging.GetConsoleLevel().String() != "DEBUG" {
			t.Errorf("Expected console level DEBUG, got %v", config.Logging.GetConsoleLevel())
		}
	})
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "latitude out of range",
			content: `
weather:
  latitude: 123
  longitude: 12.5
`,
		},
		{
			name: "inverted interval",
			content: `
refresh:
  min_interval: 2h
  max_interval: 1h
`,
		},
		{
			name: "unknown log level",
			content: `
logging:
  console_level: verbose
`,
		},
		{
			name: "backup name with a path",
			content: `
database:
  backup_name: ../elsewhere
`,
		},
		{
			name: "mqtt without host",
			content: `
mqtt:
  enabled: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Load() expected a validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load() expected an error for a missing file")
	}
}

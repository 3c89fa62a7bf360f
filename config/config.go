package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/icodeforyou/meteoam-go/logging"
	"github.com/spf13/viper"
)

// EnvPrefix scopes env overrides, e.g. METEOAM_WEATHER_LATITUDE.
const EnvPrefix = "METEOAM"

type AppConfigApi struct {
	Address string
	Port    int16 `validate:"gte=0"`
}

type AppConfigDatabase struct {
	Path string `validate:"required"`
	// How many days refresh history should be stored in database before it gets purged
	DataRetentionDays *int `mapstructure:"data_retention_days"`
	// How many days daily backup files should be stored before they gets deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
	// Backup directory, default: "backups" next to the database file
	BackupDir *string `mapstructure:"backup_dir"`
	// Backup file name prefix, default: "meteoam"
	BackupName *string `mapstructure:"backup_name" validate:"omitempty,excludesall=/\\"`
}

func (d AppConfigDatabase) GetBackupDir() string {
	if d.BackupDir == nil {
		return ""
	}
	return *d.BackupDir
}

func (d AppConfigDatabase) GetBackupName() string {
	if d.BackupName == nil {
		return "meteoam"
	}
	return *d.BackupName
}

func (d AppConfigDatabase) GetDataRetentionDays() int {
	if d.DataRetentionDays == nil {
		return 30
	}
	return *d.DataRetentionDays
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 30
	}
	return *d.BackupRetentionDays
}

// AppConfigHome is the ambient home location, used when weather.track_home is set.
type AppConfigHome struct {
	Name      string
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

type AppConfigWeather struct {
	// Entity name, defaults to the home name when tracking home, else "MeteoAM"
	Name      *string
	TrackHome bool    `mapstructure:"track_home"`
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
	// Request timeout, default: 60s
	Timeout     time.Duration `validate:"gte=0"`
	URLTemplate string        `mapstructure:"url_template" validate:"required"`
	// Consecutive failures that open the circuit breaker and how long it stays open
	BreakerFailures uint32        `mapstructure:"breaker_failures" validate:"gte=1"`
	BreakerOpenFor  time.Duration `mapstructure:"breaker_open_for" validate:"gte=0"`
}

func (w AppConfigWeather) GetName() string {
	if w.Name == nil {
		return ""
	}
	return *w.Name
}

type AppConfigRefresh struct {
	MinInterval time.Duration `mapstructure:"min_interval" validate:"gte=1s"`
	MaxInterval time.Duration `mapstructure:"max_interval" validate:"gtefield=MinInterval"`
}

type AppConfigMqtt struct {
	Enabled     bool
	Host        string `validate:"required_if=Enabled true"`
	Port        int16  `validate:"gte=0"`
	Username    string
	Password    string
	TopicPrefix string `mapstructure:"topic_prefix" validate:"required"`
}

type AppConfigMaintenance struct {
	RunAt string `mapstructure:"run_at" validate:"required"`
}

type AppConfigLogging struct {
	// Min log level for database : "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level" validate:"omitempty,loglevel"`
	// Log attributes format: "TEXT", "JSON", default: "JSON"
	DbAttrsFormat *string `mapstructure:"db_attrs_format"`
	// Maximum number of log entries in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level" validate:"omitempty,loglevel"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelOrInfo(l.DbLevel)
}

func (l AppConfigLogging) GetDbAttrsFormat() logging.LogAttrFormat {
	if l.DbAttrsFormat == nil {
		return logging.LogAttrFormatJSON
	}
	if strings.EqualFold(*l.DbAttrsFormat, "text") {
		return logging.LogAttrFormatText
	}
	return logging.LogAttrFormatJSON
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelOrInfo(l.ConsoleLevel)
}

type AppConfig struct {
	Api         AppConfigApi
	Database    AppConfigDatabase
	Home        AppConfigHome        `mapstructure:"home"`
	Weather     AppConfigWeather     `mapstructure:"weather"`
	Refresh     AppConfigRefresh     `mapstructure:"refresh"`
	Mqtt        AppConfigMqtt        `mapstructure:"mqtt"`
	Maintenance AppConfigMaintenance `mapstructure:"maintenance"`
	Logging     AppConfigLogging     `mapstructure:"logging"`
}

// Source is a config file kept open so it can be re-read when it changes.
type Source struct {
	v        *viper.Viper
	validate *validator.Validate
	mu       sync.Mutex
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.address", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.path", "meteoam.db")
	v.SetDefault("weather.track_home", false)
	v.SetDefault("weather.timeout", "60s")
	v.SetDefault("weather.url_template", "https://api.meteoam.it/deda-meteograms/api/GetMeteogram/preset1/%s,%s")
	v.SetDefault("weather.breaker_failures", 5)
	v.SetDefault("weather.breaker_open_for", "5m")
	v.SetDefault("refresh.min_interval", "55m")
	v.SetDefault("refresh.max_interval", "65m")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic_prefix", "meteoam")
	v.SetDefault("maintenance.run_at", "30 2 * * *")
}

func newValidator() *validator.Validate {
	validate := validator.New()
	err := validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := logging.ParseLevel(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(err)
	}
	return validate
}

func NewSource(path string) (*Source, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	return &Source{v: v, validate: newValidator()}, nil
}

// Config decodes and validates the current content of the source.
func (s *Source) Config() (*AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c AppConfig
	if err := s.v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}

	if err := s.validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &c, nil
}

// Watch calls onChange with the new configuration every time the file is
// written. Invalid configurations are logged and skipped.
func (s *Source) Watch(logger *slog.Logger, onChange func(*AppConfig)) {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		logger.Info("config file changed", slog.String("file", e.Name))

		c, err := s.Config()
		if err != nil {
			logger.Error("ignoring config change", slog.Any("error", err))
			return
		}
		onChange(c)
	})
	s.v.WatchConfig()
}

func Load(path string) (*AppConfig, error) {
	s, err := NewSource(path)
	if err != nil {
		return nil, err
	}
	return s.Config()
}

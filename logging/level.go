package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// ParseLevel reads a slog level name in any case, with an optional offset
// such as "INFO+2". "WARNING" is accepted for WARN.
func ParseLevel(s string) (slog.Level, error) {
	name := strings.TrimSpace(s)
	if strings.EqualFold(name, "warning") {
		name = "WARN"
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// LevelOrInfo is ParseLevel for optional settings. Unset or invalid
// values give INFO.
func LevelOrInfo(s *string) slog.Level {
	if s == nil {
		return slog.LevelInfo
	}
	l, err := ParseLevel(*s)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText   LogFormat = "text"
	LogFormatJSON   LogFormat = "json"
	LogFormatPretty LogFormat = "pretty"
)

var (
	modeNames = map[string]Mode{
		"dev":         ModeDev,
		"development": ModeDev,
		"prod":        ModeProd,
		"production":  ModeProd,
	}
	logFormatNames = map[string]LogFormat{
		"text":   LogFormatText,
		"json":   LogFormatJSON,
		"pretty": LogFormatPretty,
	}
	logLevelNames = map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
)

func normalizeName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func parseMode(raw string) (Mode, error) {
	if m, ok := modeNames[normalizeName(raw)]; ok {
		return m, nil
	}
	return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
}

func parseLogFormat(raw string) (LogFormat, error) {
	if f, ok := logFormatNames[normalizeName(raw)]; ok {
		return f, nil
	}
	return "", fmt.Errorf("invalid log format %q (expected text, json or pretty)", raw)
}

func parseLogLevel(raw string) (slog.Level, error) {
	if l, ok := logLevelNames[normalizeName(raw)]; ok {
		return l, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
}

// defaultLogFormatForMode picks JSON for prod and text otherwise. Unknown
// modes get the dev defaults and fail later in parseMode.
func defaultLogFormatForMode(mode string) string {
	if modeNames[normalizeName(mode)] == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode string) string {
	if modeNames[normalizeName(mode)] == ModeProd {
		return "info"
	}
	return "debug"
}

// NewLogger builds the process logger. The pretty format renders through
// pterm for interactive terminals.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var h slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		h = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		h = slog.NewJSONHandler(os.Stdout, opts)
	case LogFormatPretty:
		pl := pterm.DefaultLogger.
			WithLevel(ptermLogLevel(cfg.LogLevel)).
			WithWriter(os.Stdout).
			WithTime(true)
		pl.TimeFormat = "02 Jan 15:04:05"
		pl.MaxWidth = 1000
		h = pterm.NewSlogHandler(pl)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}
	return slog.New(h), nil
}

func ptermLogLevel(level slog.Level) pterm.LogLevel {
	switch {
	case level <= slog.LevelDebug:
		return pterm.LogLevelDebug
	case level <= slog.LevelInfo:
		return pterm.LogLevelInfo
	case level <= slog.LevelWarn:
		return pterm.LogLevelWarn
	default:
		return pterm.LogLevelError
	}
}

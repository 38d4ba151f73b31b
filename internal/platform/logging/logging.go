// Package logging は設定に従って slog.Logger を構築します。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ogurasousui/site-access/internal/platform/config"
)

// New は cfg の level/format に従った slog.Logger を返します。
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}

	return slog.New(handler).With("service", "site-access"), nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if raw == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("logging: level %q: %w", raw, err)
	}
	return level, nil
}

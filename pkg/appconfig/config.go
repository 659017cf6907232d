// Package appconfig resolves per-application settings, most importantly the
// logger handed to cloud functions.
package appconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const logPrefix = "appconfig:config"

// ErrApplicationNotFound is returned when no configuration exists for an application.
var ErrApplicationNotFound = errors.New("appconfig: application not found")

// Config is the resolved configuration of one application.
type Config struct {
	AppID    string
	LogLevel slog.Level
	// Logger carries the appId attribute and drops records below LogLevel.
	Logger *slog.Logger
}

// Resolver looks up application configuration by id.
type Resolver interface {
	Resolve(ctx context.Context, appID string) (*Config, error)
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return slog.LevelInfo, nil
	case "verbose", "trace":
		return slog.LevelDebug, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%s - invalid log level %q: %w", logPrefix, s, err)
	}
	return level, nil
}

// New builds a Config whose logger writes through base at level.
func New(base *slog.Logger, appID string, level slog.Level) *Config {
	if base == nil {
		base = slog.Default()
	}
	logger := slog.New(&levelHandler{level: level, next: base.Handler()}).With("appId", appID)
	return &Config{AppID: appID, LogLevel: level, Logger: logger}
}

// levelHandler raises the minimum level of the wrapped handler.
type levelHandler struct {
	level slog.Leveler
	next  slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.next.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, next: h.next.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, next: h.next.WithGroup(name)}
}

// Chain tries each resolver in order and returns the first configuration found.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, appID string) (*Config, error) {
	var lastErr error
	for _, r := range c {
		if r == nil {
			continue
		}
		cfg, err := r.Resolve(ctx, appID)
		if err == nil {
			return cfg, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s - %s: %w", logPrefix, appID, ErrApplicationNotFound)
	}
	return nil, lastErr
}

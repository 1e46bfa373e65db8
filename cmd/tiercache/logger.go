package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/internal/config"
	lr "github.com/unkn0wn-root/tiercache/log/logrus"
	ls "github.com/unkn0wn-root/tiercache/log/slog"
	lz "github.com/unkn0wn-root/tiercache/log/zap"
)

// newLogger returns the configured adapter and a flush func for shutdown.
func newLogger(cfg config.Log) (tiercache.Logger, func(), error) {
	switch cfg.Backend {
	case "zap":
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(lvl)
		l, err := zc.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("zap: %w", err)
		}
		return lz.ZapLogger{L: l}, func() { _ = l.Sync() }, nil
	case "logrus":
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		l := logrus.New()
		l.SetLevel(lvl)
		l.SetFormatter(&logrus.JSONFormatter{})
		return lr.New(l), func() {}, nil
	case "slog":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, err
		}
		h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
		return ls.Logger{L: slog.New(h)}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

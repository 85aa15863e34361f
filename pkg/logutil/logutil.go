// Copyright 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil wraps a process-global zap logger. The reader core only
// emits Debug level records on hot paths; everything else logs at the
// stripe/file granularity.
package logutil

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once          sync.Once
	_globalLogger atomic.Value // *zap.Logger
)

// Config drives Setup. The zero value logs info and above to stderr in
// console format.
type Config struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "console" or "json"
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"` // megabytes, per rotated file
	MaxDays    int    `toml:"max-days"`
	MaxBackups int    `toml:"max-backups"`
}

// Setup replaces the global logger. Safe to call more than once; later calls
// win. Library code never calls Setup, only the embedding application does.
func Setup(cfg Config) *zap.Logger {
	logger := newLogger(cfg)
	_globalLogger.Store(logger)
	return logger
}

func newLogger(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			level = zapcore.InfoLevel
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Filename != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxDays,
			MaxBackups: cfg.MaxBackups,
		})
	} else {
		sink = zapcore.Lock(zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(enc, sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// GetGlobalLogger returns the current global logger, initializing a default
// one on first use.
func GetGlobalLogger() *zap.Logger {
	if l := _globalLogger.Load(); l != nil {
		return l.(*zap.Logger)
	}
	once.Do(func() {
		if _globalLogger.Load() == nil {
			_globalLogger.Store(newLogger(Config{}))
		}
	})
	return _globalLogger.Load().(*zap.Logger)
}

// Adjust returns logger if non-nil, otherwise the global logger.
func Adjust(logger *zap.Logger) *zap.Logger {
	if logger != nil {
		return logger
	}
	return GetGlobalLogger()
}

func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetGlobalLogger().Fatal(msg, fields...)
}

func Debugf(msg string, args ...any) {
	GetGlobalLogger().Sugar().Debugf(msg, args...)
}

func Infof(msg string, args ...any) {
	GetGlobalLogger().Sugar().Infof(msg, args...)
}

func Warnf(msg string, args ...any) {
	GetGlobalLogger().Sugar().Warnf(msg, args...)
}

func Errorf(msg string, args ...any) {
	GetGlobalLogger().Sugar().Errorf(msg, args...)
}

func Fatalf(msg string, args ...any) {
	GetGlobalLogger().Sugar().Fatalf(msg, args...)
}

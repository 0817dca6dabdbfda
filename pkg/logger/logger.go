// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a leveled, key/value structured logger.
// Warnw and Errorw take the error separately so it is always reported under
// the same key.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, err error, keysAndValues ...interface{})
	Errorw(msg string, err error, keysAndValues ...interface{})
	WithValues(keysAndValues ...interface{}) Logger
	WithName(name string) Logger
}

type Config struct {
	JSON  bool   `yaml:"json,omitempty"`
	Level string `yaml:"level,omitempty"`
	// component level overrides, keyed by logger name
	ComponentLevels map[string]string `yaml:"component_levels,omitempty"`
}

var (
	mu            sync.RWMutex
	defaultLogger Logger = NewZapLogger(zap.NewNop(), nil)
)

func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func SetLogger(l Logger, name string) {
	if name != "" {
		l = l.WithName(name)
	}
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

func InitProduction(logLevel string) {
	initLogger(zap.NewProductionConfig(), logLevel, nil, "substream")
}

func InitDevelopment(logLevel string) {
	initLogger(zap.NewDevelopmentConfig(), logLevel, nil, "substream")
}

func InitFromConfig(conf *Config, name string) {
	zc := zap.NewProductionConfig()
	if !conf.JSON {
		zc = zap.NewDevelopmentConfig()
	}
	initLogger(zc, conf.Level, conf.ComponentLevels, name)
}

// valid levels: debug, info, warn, error, fatal, panic
func initLogger(config zap.Config, level string, componentLevels map[string]string, name string) {
	if lvl, ok := parseLevel(level); ok {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return
	}
	SetLogger(NewZapLogger(l, componentLevels), name)
}

func parseLevel(level string) (zapcore.Level, bool) {
	if level == "" {
		return zapcore.InfoLevel, false
	}
	lvl := zapcore.Level(0)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, false
	}
	return lvl, true
}

func Debugw(msg string, keysAndValues ...interface{}) {
	GetLogger().Debugw(msg, keysAndValues...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	GetLogger().Infow(msg, keysAndValues...)
}

func Warnw(msg string, err error, keysAndValues ...interface{}) {
	GetLogger().Warnw(msg, err, keysAndValues...)
}

func Errorw(msg string, err error, keysAndValues ...interface{}) {
	GetLogger().Errorw(msg, err, keysAndValues...)
}

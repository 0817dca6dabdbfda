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
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	zap             *zap.SugaredLogger
	name            string
	componentLevels map[string]string
	minLevel        *zapcore.Level
}

func NewZapLogger(l *zap.Logger, componentLevels map[string]string) Logger {
	return &zapLogger{
		zap:             l.Sugar(),
		componentLevels: componentLevels,
	}
}

func (l *zapLogger) enabled(lvl zapcore.Level) bool {
	if l.minLevel == nil {
		return true
	}
	return lvl >= *l.minLevel
}

func (l *zapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	if l.enabled(zapcore.DebugLevel) {
		l.zap.Debugw(msg, keysAndValues...)
	}
}

func (l *zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	if l.enabled(zapcore.InfoLevel) {
		l.zap.Infow(msg, keysAndValues...)
	}
}

func (l *zapLogger) Warnw(msg string, err error, keysAndValues ...interface{}) {
	if !l.enabled(zapcore.WarnLevel) {
		return
	}
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	l.zap.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Errorw(msg string, err error, keysAndValues ...interface{}) {
	if !l.enabled(zapcore.ErrorLevel) {
		return
	}
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	l.zap.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) WithValues(keysAndValues ...interface{}) Logger {
	dup := *l
	dup.zap = l.zap.With(keysAndValues...)
	return &dup
}

// WithName appends a dot separated component name. A component_levels entry
// matching the full name (or any parent) raises the minimum level.
func (l *zapLogger) WithName(name string) Logger {
	dup := *l
	if l.name != "" {
		dup.name = l.name + "." + name
	} else {
		dup.name = name
	}
	dup.zap = l.zap.Named(name)
	if lvl, ok := l.componentLevel(dup.name); ok {
		dup.minLevel = &lvl
	}
	return &dup
}

func (l *zapLogger) componentLevel(name string) (zapcore.Level, bool) {
	for name != "" {
		if s, ok := l.componentLevels[name]; ok {
			return parseLevel(s)
		}
		idx := strings.LastIndex(name, ".")
		if idx < 0 {
			break
		}
		name = name[:idx]
	}
	return zapcore.InfoLevel, false
}

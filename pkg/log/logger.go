/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package log

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/apache/flink-k8s-operator/pkg/locking"
)

// LoggerHandle identifies a named logging scope.
type LoggerHandle struct {
	id   int
	name string
}

// Name returns the dotted scope name, empty for the root logger.
func (h *LoggerHandle) Name() string {
	return h.name
}

// Logger handles. The level of a scope is taken from "log.<name>.level",
// falling back to the parent scope and finally to "log.level".
var (
	Operator      = &LoggerHandle{id: 0, name: ""}
	Test          = &LoggerHandle{id: 1, name: "test"}
	Config        = &LoggerHandle{id: 2, name: "conf"}
	Client        = &LoggerHandle{id: 3, name: "client"}
	Events        = &LoggerHandle{id: 4, name: "events"}
	Status        = &LoggerHandle{id: 5, name: "status"}
	Service       = &LoggerHandle{id: 6, name: "service"}
	Savepoint     = &LoggerHandle{id: 7, name: "savepoint"}
	Reconciler    = &LoggerHandle{id: 8, name: "reconciler"}
	JobReconciler = &LoggerHandle{id: 9, name: "reconciler.job"}
	Controller    = &LoggerHandle{id: 10, name: "controller"}
	Metrics       = &LoggerHandle{id: 11, name: "metrics"}
)

var handles = []*LoggerHandle{
	Operator, Test, Config, Client, Events, Status, Service,
	Savepoint, Reconciler, JobReconciler, Controller, Metrics,
}

const (
	defaultLevel = zapcore.InfoLevel
	levelPrefix  = "log."
	levelSuffix  = ".level"
)

var (
	once       sync.Once
	lock       locking.RWMutex
	logger     *zap.Logger
	zapConfigs *zap.Config
	levels     []zap.AtomicLevel
	scoped     []*zap.Logger
)

// Log returns the logger for the given scope.
func Log(handle *LoggerHandle) *zap.Logger {
	once.Do(initLogger)
	lock.RLock()
	defer lock.RUnlock()
	return scoped[handle.id]
}

// RootLogger returns the unnamed operator logger.
func RootLogger() *zap.Logger {
	return Log(Operator)
}

// Logger returns the root logger.
//
// Deprecated: use Log(handle) with a named scope instead.
func Logger() *zap.Logger {
	return RootLogger()
}

func initLogger() {
	zapConfigs = &zap.Config{
		// scope levels filter on top of the root, which must let everything through
		Level:             zap.NewAtomicLevelAt(zapcore.DebugLevel),
		Development:       false,
		DisableCaller:     false,
		DisableStacktrace: false,
		Sampling:          nil,
		Encoding:          "console",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "time",
			NameKey:        "logger",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	root, err := zapConfigs.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to init logger, reason: %s", err.Error()))
	}
	setRootLogger(root)
}

// setRootLogger replaces the root and rebuilds all scoped loggers on top of
// it. Configured scope levels are preserved.
func setRootLogger(root *zap.Logger) {
	lock.Lock()
	defer lock.Unlock()
	logger = root
	if levels == nil {
		levels = make([]zap.AtomicLevel, len(handles))
		for _, h := range handles {
			levels[h.id] = zap.NewAtomicLevelAt(defaultLevel)
		}
	}
	scoped = make([]*zap.Logger, len(handles))
	for _, h := range handles {
		scoped[h.id] = newScopedLogger(root, h, levels[h.id])
	}
}

func newScopedLogger(root *zap.Logger, handle *LoggerHandle, level zap.AtomicLevel) *zap.Logger {
	named := root
	if handle.name != "" {
		named = root.Named(handle.name)
	}
	return named.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &levelFilterCore{Core: core, level: level}
	}))
}

// UpdateLoggingConfig applies the "log.*" keys of the given configuration to
// all scopes. Scopes without a setting of their own inherit the parent's.
func UpdateLoggingConfig(config map[string]string) {
	once.Do(initLogger)
	lock.RLock()
	defer lock.RUnlock()
	for _, h := range handles {
		levels[h.id].SetLevel(resolveLevel(h.name, config))
	}
}

func resolveLevel(name string, config map[string]string) zapcore.Level {
	for {
		key := levelPrefix + name + levelSuffix
		if name == "" {
			key = levelPrefix + "level"
		}
		if value, ok := config[key]; ok {
			if level, ok := parseLevel(value); ok {
				return level
			}
		}
		if name == "" {
			return defaultLevel
		}
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			name = name[:idx]
		} else {
			name = ""
		}
	}
}

// parseLevel accepts zap level names in any case or their numeric value.
func parseLevel(value string) (zapcore.Level, bool) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		if n < int(zapcore.DebugLevel) || n > int(zapcore.FatalLevel) {
			return defaultLevel, false
		}
		return zapcore.Level(n), true
	}
	level, err := zapcore.ParseLevel(strings.ToLower(value))
	if err != nil {
		return defaultLevel, false
	}
	return level, true
}

// levelFilterCore drops entries below the level of its scope.
type levelFilterCore struct {
	zapcore.Core
	level zap.AtomicLevel
}

func (c *levelFilterCore) Enabled(level zapcore.Level) bool {
	return c.level.Enabled(level) && c.Core.Enabled(level)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.level.Enabled(entry.Level) {
		return checked
	}
	return c.Core.Check(entry, checked)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), level: c.level}
}

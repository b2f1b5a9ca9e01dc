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

package conf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apache/flink-k8s-operator/pkg/log"
)

// Configuration is a flat key/value view of the Flink and operator settings
// that apply to a single resource.
type Configuration map[string]string

type BoolOption struct {
	Key     string
	Default bool
}

type IntOption struct {
	Key     string
	Default int
}

type StringOption struct {
	Key     string
	Default string
}

type DurationOption struct {
	Key     string
	Default time.Duration
}

func (c Configuration) Clone() Configuration {
	clone := make(Configuration, len(c))
	for k, v := range c {
		clone[k] = v
	}
	return clone
}

// Merge returns a new configuration with the overrides applied on top.
func (c Configuration) Merge(overrides map[string]string) Configuration {
	merged := c.Clone()
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func (c Configuration) Contains(key string) bool {
	_, ok := c[key]
	return ok
}

// Invalid values fall back to the option default.

func (c Configuration) GetBool(opt BoolOption) bool {
	value, ok := c[opt.Key]
	if !ok {
		return opt.Default
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		logInvalid(opt.Key, value, opt.Default, err)
		return opt.Default
	}
	return parsed
}

func (c Configuration) GetInt(opt IntOption) int {
	value, ok := c[opt.Key]
	if !ok {
		return opt.Default
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logInvalid(opt.Key, value, opt.Default, err)
		return opt.Default
	}
	return parsed
}

func (c Configuration) GetString(opt StringOption) string {
	if value, ok := c[opt.Key]; ok {
		return value
	}
	return opt.Default
}

func (c Configuration) GetDuration(opt DurationOption) time.Duration {
	value, ok := c[opt.Key]
	if !ok {
		return opt.Default
	}
	parsed, err := ParseDuration(value)
	if err != nil {
		logInvalid(opt.Key, value, opt.Default, err)
		return opt.Default
	}
	return parsed
}

func logInvalid(key string, value string, def interface{}, err error) {
	log.Log(log.Config).Warn("invalid configuration value, using default",
		zap.String("key", key),
		zap.String("value", value),
		zap.Any("default", def),
		zap.Error(err))
}

// ParseDuration accepts Go duration strings and plain integers, which are
// interpreted as milliseconds.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration: %s", value)
		}
		return d, nil
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s", value)
	}
	if ms < 0 {
		return 0, fmt.Errorf("negative duration: %s", value)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// IsHighAvailabilityEnabled reports whether HA services are configured.
func IsHighAvailabilityEnabled(c Configuration) bool {
	mode := c.GetString(HighAvailabilityType)
	if mode == "" {
		mode = c.GetString(HighAvailabilityLegacy)
	}
	mode = strings.TrimSpace(mode)
	return mode != "" && !strings.EqualFold(mode, "NONE")
}

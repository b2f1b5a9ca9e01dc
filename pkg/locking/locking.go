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

// Package locking provides mutexes which can be switched to deadlock
// detecting implementations at process start.
package locking

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

const (
	EnvDeadlockDetectionEnabled = "DEADLOCK_DETECTION_ENABLED"
	EnvDeadlockTimeoutSeconds   = "DEADLOCK_TIMEOUT_SECONDS"
	defaultDeadlockTimeout      = 60 * time.Second
)

var trackingEnabled bool

func init() {
	configure(os.Getenv(EnvDeadlockDetectionEnabled), os.Getenv(EnvDeadlockTimeoutSeconds))
}

func configure(enabled string, timeout string) {
	trackingEnabled = enabled == "true"
	deadlock.Opts.Disable = !trackingEnabled
	deadlock.Opts.DeadlockTimeout = defaultDeadlockTimeout
	if seconds, err := strconv.Atoi(timeout); err == nil && seconds > 0 {
		deadlock.Opts.DeadlockTimeout = time.Duration(seconds) * time.Second
	}
}

// IsTrackingEnabled reports whether deadlock detection was switched on.
func IsTrackingEnabled() bool {
	return trackingEnabled
}

type Mutex struct {
	mutex   sync.Mutex
	tracked deadlock.Mutex
}

func (m *Mutex) Lock() {
	if trackingEnabled {
		m.tracked.Lock()
		return
	}
	m.mutex.Lock()
}

func (m *Mutex) Unlock() {
	if trackingEnabled {
		m.tracked.Unlock()
		return
	}
	m.mutex.Unlock()
}

type RWMutex struct {
	mutex   sync.RWMutex
	tracked deadlock.RWMutex
}

func (m *RWMutex) Lock() {
	if trackingEnabled {
		m.tracked.Lock()
		return
	}
	m.mutex.Lock()
}

func (m *RWMutex) Unlock() {
	if trackingEnabled {
		m.tracked.Unlock()
		return
	}
	m.mutex.Unlock()
}

func (m *RWMutex) RLock() {
	if trackingEnabled {
		m.tracked.RLock()
		return
	}
	m.mutex.RLock()
}

func (m *RWMutex) RUnlock() {
	if trackingEnabled {
		m.tracked.RUnlock()
		return
	}
	m.mutex.RUnlock()
}

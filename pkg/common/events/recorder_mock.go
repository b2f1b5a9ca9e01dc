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

package events

import (
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/apache/flink-k8s-operator/pkg/locking"
)

type RecordedEvent struct {
	Type      Type
	Reason    Reason
	Component Component
	Message   string
}

// MockedRecorder keeps all triggered events in memory.
type MockedRecorder struct {
	events []RecordedEvent
	lock   locking.RWMutex
}

func NewMockedRecorder() *MockedRecorder {
	return &MockedRecorder{}
}

func (m *MockedRecorder) TriggerEvent(_ runtime.Object, eventType Type, reason Reason, component Component, message string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.events = append(m.events, RecordedEvent{
		Type:      eventType,
		Reason:    reason,
		Component: component,
		Message:   message,
	})
}

func (m *MockedRecorder) Events() []RecordedEvent {
	m.lock.RLock()
	defer m.lock.RUnlock()
	result := make([]RecordedEvent, len(m.events))
	copy(result, m.events)
	return result
}

// Reasons returns the reasons of all recorded events in order.
func (m *MockedRecorder) Reasons() []Reason {
	m.lock.RLock()
	defer m.lock.RUnlock()
	result := make([]Reason, 0, len(m.events))
	for _, e := range m.events {
		result = append(result, e.Reason)
	}
	return result
}

func (m *MockedRecorder) Reset() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.events = nil
}

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
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"

	"github.com/apache/flink-k8s-operator/pkg/log"
)

// ComponentAnnotation carries the event component on the emitted event.
const ComponentAnnotation = "flink.apache.org/component"

// EventRecorder emits lifecycle events for a managed resource.
type EventRecorder interface {
	TriggerEvent(object runtime.Object, eventType Type, reason Reason, component Component, message string)
}

// KubernetesEventRecorder writes events through a client-go recorder.
type KubernetesEventRecorder struct {
	recorder record.EventRecorder
}

func NewEventRecorder(recorder record.EventRecorder) *KubernetesEventRecorder {
	return &KubernetesEventRecorder{recorder: recorder}
}

func (r *KubernetesEventRecorder) TriggerEvent(object runtime.Object, eventType Type, reason Reason, component Component, message string) {
	log.Log(log.Events).Debug("emitting event",
		zap.String("type", string(eventType)),
		zap.String("reason", string(reason)),
		zap.String("component", string(component)),
		zap.String("message", message))
	r.recorder.AnnotatedEventf(object,
		map[string]string{ComponentAnnotation: string(component)},
		string(eventType), string(reason), "%s", message)
}

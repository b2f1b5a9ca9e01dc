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

package savepoint

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/common/events"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/log"
	"github.com/apache/flink-k8s-operator/pkg/metrics"
	"github.com/apache/flink-k8s-operator/pkg/reconciler"
	"github.com/apache/flink-k8s-operator/pkg/service"
)

// Advisor decides when a savepoint of a running job has to be triggered:
// on request through the savepoint trigger nonce of the job spec, or
// periodically when a savepoint interval is configured.
type Advisor struct {
	recorder events.EventRecorder
	clock    clock.PassiveClock
}

func NewAdvisor(recorder events.EventRecorder, clk clock.PassiveClock) *Advisor {
	return &Advisor{
		recorder: recorder,
		clock:    clk,
	}
}

// SavepointInProgress reports whether a savepoint was triggered and has not
// completed yet.
func (a *Advisor) SavepointInProgress(jobStatus *v1beta1.JobStatus) bool {
	return jobStatus.SavepointInfo.SavepointInProgress()
}

// TriggerIfNeeded triggers a savepoint when one is due and returns true if
// it did.
func (a *Advisor) TriggerIfNeeded(ctx context.Context, svc service.JobExecutionService,
	resource *v1beta1.FlinkDeployment, config conf.Configuration) (bool, error) {
	status := &resource.Status
	if resource.Spec.Job == nil || status.ReconciliationStatus.IsBeforeFirstDeployment() {
		return false, nil
	}
	if !reconciler.IsJobRunning(status) || a.SavepointInProgress(&status.JobStatus) {
		return false, nil
	}

	triggerType, err := a.dueTrigger(resource, config)
	if err != nil || triggerType == "" {
		return false, err
	}
	if err = svc.TriggerSavepoint(ctx, resource, triggerType, config); err != nil {
		return false, err
	}

	switch triggerType {
	case v1beta1.SavepointTriggerManual:
		if err = reconciler.UpdateLastReconciledSavepointTriggerNonce(resource); err != nil {
			return false, err
		}
	case v1beta1.SavepointTriggerPeriodic:
		status.JobStatus.SavepointInfo.LastPeriodicSavepointTimestamp = a.clock.Now().UnixMilli()
	}
	metrics.SavepointsTriggeredTotal.WithLabelValues(string(triggerType)).Inc()
	a.recorder.TriggerEvent(resource, events.TypeNormal, events.ReasonSavepointTriggered, events.ComponentJob,
		fmt.Sprintf("Triggered %s savepoint", triggerType))
	log.Log(log.Savepoint).Info("savepoint triggered",
		zap.String("namespace", resource.Namespace),
		zap.String("name", resource.Name),
		zap.String("triggerType", string(triggerType)))
	return true, nil
}

// dueTrigger returns the type of the savepoint that is due, empty if none.
func (a *Advisor) dueTrigger(resource *v1beta1.FlinkDeployment, config conf.Configuration) (v1beta1.SavepointTriggerType, error) {
	lastJob, err := reconciler.LastReconciledJob(resource)
	if err != nil {
		return "", err
	}
	nonce := resource.Spec.Job.SavepointTriggerNonce
	if nonce != nil && (lastJob.SavepointTriggerNonce == nil || *lastJob.SavepointTriggerNonce != *nonce) {
		return v1beta1.SavepointTriggerManual, nil
	}

	interval := config.GetDuration(conf.PeriodicSavepointInterval)
	if interval <= 0 {
		return "", nil
	}
	info := &resource.Status.JobStatus.SavepointInfo
	now := a.clock.Now()
	if info.LastPeriodicSavepointTimestamp == 0 {
		// first time we see the job running, start the interval now
		info.LastPeriodicSavepointTimestamp = now.UnixMilli()
		return "", nil
	}
	if now.Sub(time.UnixMilli(info.LastPeriodicSavepointTimestamp)) < interval {
		return "", nil
	}
	return v1beta1.SavepointTriggerPeriodic, nil
}

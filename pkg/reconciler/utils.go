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

package reconciler

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"k8s.io/utils/clock"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/conf"
)

// UpdateStatusBeforeDeploymentAttempt snapshots the decided spec before the
// job is (re)deployed. The job is recorded as suspended until the deployment
// is confirmed, so an interrupted attempt shows up as a pending
// suspended -> running change on the next pass.
func UpdateStatusBeforeDeploymentAttempt(resource *v1beta1.FlinkDeployment, decided *v1beta1.FlinkDeploymentSpec, clk clock.PassiveClock) error {
	return updateStatusForSpecReconciliation(resource, decided, v1beta1.JobStateSuspended, UpgradeSpec, clk)
}

// UpdateStatusForDeployedSpec snapshots the decided spec once it was applied.
func UpdateStatusForDeployedSpec(resource *v1beta1.FlinkDeployment, decided *v1beta1.FlinkDeploymentSpec, clk clock.PassiveClock) error {
	var state v1beta1.JobState
	if decided.Job != nil {
		state = decided.Job.StateOrDefault()
	}
	return updateStatusForSpecReconciliation(resource, decided, state, DeploySpec, clk)
}

func updateStatusForSpecReconciliation(resource *v1beta1.FlinkDeployment, decided *v1beta1.FlinkDeploymentSpec,
	recordedState v1beta1.JobState, event ReconciliationEvent, clk clock.PassiveClock) error {
	status := &resource.Status.ReconciliationStatus
	recorded := decided.DeepCopy()
	if recorded.Job != nil {
		recorded.Job.State = recordedState
		lastSpec, err := status.DeserializeLastReconciledSpec()
		if err != nil {
			return err
		}
		// keep the last handled trigger so a nonce changed during the
		// upgrade still triggers a savepoint afterwards
		if lastSpec != nil && lastSpec.Job != nil {
			recorded.Job.SavepointTriggerNonce = copyNonce(lastSpec.Job.SavepointTriggerNonce)
		}
	}
	if err := status.SerializeAndSetLastReconciledSpec(recorded); err != nil {
		return err
	}
	status.ReconciliationTimestamp = clk.Now().UnixMilli()
	if err := TransitionState(resource, event); err != nil {
		return err
	}
	if decided.Job != nil && decided.Job.StateOrDefault() == v1beta1.JobStateSuspended {
		status.MarkReconciledSpecAsStable()
	}
	resource.Status.ObservedGeneration = resource.Generation
	resource.Status.Error = ""
	return nil
}

// UpdateLastReconciledSavepointTriggerNonce records the nonce of the current
// spec as handled without touching the rest of the reconciled spec.
func UpdateLastReconciledSavepointTriggerNonce(resource *v1beta1.FlinkDeployment) error {
	status := &resource.Status.ReconciliationStatus
	lastSpec, err := status.DeserializeLastReconciledSpec()
	if err != nil {
		return err
	}
	if lastSpec == nil || lastSpec.Job == nil || resource.Spec.Job == nil {
		return nil
	}
	lastSpec.Job.SavepointTriggerNonce = copyNonce(resource.Spec.Job.SavepointTriggerNonce)
	wasStable := status.IsLastReconciledSpecStable()
	if err = status.SerializeAndSetLastReconciledSpec(lastSpec); err != nil {
		return err
	}
	if wasStable {
		status.MarkReconciledSpecAsStable()
	}
	return nil
}

func copyNonce(nonce *int64) *int64 {
	if nonce == nil {
		return nil
	}
	value := *nonce
	return &value
}

// GetDeployedSpec returns the spec that is currently running: the stable
// spec after a rollback, the last reconciled spec otherwise.
func GetDeployedSpec(resource *v1beta1.FlinkDeployment) (*v1beta1.FlinkDeploymentSpec, error) {
	status := &resource.Status.ReconciliationStatus
	if status.CurrentState() == v1beta1.ReconciliationRolledBack {
		return status.DeserializeLastStableSpec()
	}
	return status.DeserializeLastReconciledSpec()
}

// LastReconciledJob returns the job part of the last reconciled spec.
func LastReconciledJob(resource *v1beta1.FlinkDeployment) (*v1beta1.JobSpec, error) {
	lastSpec, err := resource.Status.ReconciliationStatus.DeserializeLastReconciledSpec()
	if err != nil {
		return nil, err
	}
	if lastSpec == nil || lastSpec.Job == nil {
		return nil, fmt.Errorf("resource %s/%s has no reconciled job spec", resource.Namespace, resource.Name)
	}
	return lastSpec.Job, nil
}

func IsJobRunning(status *v1beta1.FlinkDeploymentStatus) bool {
	return status.JobStatus.State == v1beta1.JobStatusRunning
}

func IsJobInTerminalState(status *v1beta1.FlinkDeploymentStatus) bool {
	return status.JobStatus.State.IsGloballyTerminal()
}

// IsUpgradeModeChangedToLastStateAndHADisabledPreviously reports a switch to
// last-state where the running deployment was started without HA, so there
// is no HA metadata to resume from.
func IsUpgradeModeChangedToLastStateAndHADisabledPreviously(resource *v1beta1.FlinkDeployment, observeConfig conf.Configuration) (bool, error) {
	deployed, err := GetDeployedSpec(resource)
	if err != nil {
		return false, err
	}
	if deployed == nil || deployed.Job == nil || resource.Spec.Job == nil {
		return false, nil
	}
	return deployed.Job.UpgradeModeOrDefault() != v1beta1.UpgradeModeLastState &&
		resource.Spec.Job.UpgradeModeOrDefault() == v1beta1.UpgradeModeLastState &&
		!conf.IsHighAvailabilityEnabled(observeConfig), nil
}

// FlinkVersionChanged compares the runtime version of the deployed and the
// desired spec.
func FlinkVersionChanged(deployed *v1beta1.FlinkDeploymentSpec, desired *v1beta1.FlinkDeploymentSpec) bool {
	if deployed == nil || desired == nil {
		return false
	}
	return deployed.FlinkVersion != desired.FlinkVersion
}

// fields that are recorded or consumed by the operator itself and never
// require a redeployment on their own
var specDiffOptions = []cmp.Option{
	cmpopts.IgnoreFields(v1beta1.JobSpec{}, "UpgradeMode", "SavepointTriggerNonce", "InitialSavepointPath", "AllowNonRestoredState"),
	cmpopts.EquateEmpty(),
}

// IsSpecChanged reports whether the desired spec differs from the last
// reconciled one in a way that needs a spec change reconciliation.
func IsSpecChanged(resource *v1beta1.FlinkDeployment) (bool, error) {
	lastSpec, err := resource.Status.ReconciliationStatus.DeserializeLastReconciledSpec()
	if err != nil {
		return false, err
	}
	if lastSpec == nil {
		return true, nil
	}
	return !cmp.Equal(normalize(lastSpec), normalize(&resource.Spec), specDiffOptions...), nil
}

// SpecDiff returns a human readable diff of the desired spec against the
// last reconciled one.
func SpecDiff(resource *v1beta1.FlinkDeployment) (string, error) {
	lastSpec, err := resource.Status.ReconciliationStatus.DeserializeLastReconciledSpec()
	if err != nil {
		return "", err
	}
	if lastSpec == nil {
		lastSpec = &v1beta1.FlinkDeploymentSpec{}
	}
	return cmp.Diff(normalize(lastSpec), normalize(&resource.Spec), specDiffOptions...), nil
}

func normalize(spec *v1beta1.FlinkDeploymentSpec) *v1beta1.FlinkDeploymentSpec {
	normalized := spec.DeepCopy()
	if normalized.Job != nil {
		normalized.Job.State = normalized.Job.StateOrDefault()
	}
	return normalized
}

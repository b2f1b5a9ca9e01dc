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

package v1beta1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Spec part

type FlinkVersion string

const (
	FlinkVersion1_15 FlinkVersion = "v1_15"
	FlinkVersion1_16 FlinkVersion = "v1_16"
	FlinkVersion1_17 FlinkVersion = "v1_17"
	FlinkVersion1_18 FlinkVersion = "v1_18"
)

// JobState is the desired lifecycle state of the job.
type JobState string

const (
	JobStateRunning   JobState = "running"
	JobStateSuspended JobState = "suspended"
)

// UpgradeMode selects how state is carried over when a running job is
// stopped for an upgrade or suspension.
type UpgradeMode string

const (
	// UpgradeModeStateless discards all state.
	UpgradeModeStateless UpgradeMode = "stateless"
	// UpgradeModeSavepoint takes a savepoint on cancel and restores from it.
	UpgradeModeSavepoint UpgradeMode = "savepoint"
	// UpgradeModeLastState restores from the latest checkpoint recorded in
	// the HA metadata.
	UpgradeModeLastState UpgradeMode = "last-state"
)

type JobSpec struct {
	// +kubebuilder:validation:Required
	JarURI string `json:"jarURI"`

	// +kubebuilder:validation:Minimum=1
	Parallelism int32 `json:"parallelism,omitempty"`

	EntryClass string   `json:"entryClass,omitempty"`
	Args       []string `json:"args,omitempty"`

	// +kubebuilder:validation:Enum=running;suspended
	// +kubebuilder:default=running
	State JobState `json:"state,omitempty"`

	// +kubebuilder:validation:Enum=stateless;savepoint;last-state
	// +kubebuilder:default=stateless
	UpgradeMode UpgradeMode `json:"upgradeMode,omitempty"`

	// Changing the nonce triggers a manual savepoint.
	SavepointTriggerNonce *int64 `json:"savepointTriggerNonce,omitempty"`

	// Savepoint used for the very first deployment only.
	InitialSavepointPath string `json:"initialSavepointPath,omitempty"`

	AllowNonRestoredState *bool `json:"allowNonRestoredState,omitempty"`
}

type FlinkDeploymentSpec struct {
	Image              string            `json:"image,omitempty"`
	ImagePullPolicy    string            `json:"imagePullPolicy,omitempty"`
	FlinkVersion       FlinkVersion      `json:"flinkVersion,omitempty"`
	ServiceAccount     string            `json:"serviceAccount,omitempty"`
	FlinkConfiguration map[string]string `json:"flinkConfiguration,omitempty"`
	Job                *JobSpec          `json:"job,omitempty"`
}

// Status part

// JobStatusState is the job state as reported by the execution service.
type JobStatusState string

const (
	JobStatusInitializing JobStatusState = "INITIALIZING"
	JobStatusCreated      JobStatusState = "CREATED"
	JobStatusRunning      JobStatusState = "RUNNING"
	JobStatusFailing      JobStatusState = "FAILING"
	JobStatusFailed       JobStatusState = "FAILED"
	JobStatusCancelling   JobStatusState = "CANCELLING"
	JobStatusCanceled     JobStatusState = "CANCELED"
	JobStatusFinished     JobStatusState = "FINISHED"
	JobStatusRestarting   JobStatusState = "RESTARTING"
	JobStatusSuspended    JobStatusState = "SUSPENDED"
	JobStatusReconciling  JobStatusState = "RECONCILING"
)

// IsGloballyTerminal reports whether the job reached a state it will never
// leave on its own.
func (s JobStatusState) IsGloballyTerminal() bool {
	switch s {
	case JobStatusFailed, JobStatusCanceled, JobStatusFinished:
		return true
	default:
		return false
	}
}

// IsTransitional reports whether the job is neither running nor globally
// terminal. Upgrades are deferred while the job is in one of these states.
// Unknown and empty states are treated as transitional.
func (s JobStatusState) IsTransitional() bool {
	switch s {
	case JobStatusInitializing, JobStatusCreated, JobStatusFailing, JobStatusCancelling,
		JobStatusRestarting, JobStatusSuspended, JobStatusReconciling:
		return true
	case JobStatusRunning, JobStatusFailed, JobStatusCanceled, JobStatusFinished:
		return false
	default:
		return true
	}
}

type SavepointTriggerType string

const (
	SavepointTriggerManual   SavepointTriggerType = "MANUAL"
	SavepointTriggerPeriodic SavepointTriggerType = "PERIODIC"
	SavepointTriggerUpgrade  SavepointTriggerType = "UPGRADE"
	SavepointTriggerUnknown  SavepointTriggerType = "UNKNOWN"
)

type Savepoint struct {
	TimeStamp   int64                `json:"timeStamp"`
	Location    string               `json:"location"`
	TriggerType SavepointTriggerType `json:"triggerType,omitempty"`
}

type SavepointInfo struct {
	LastSavepoint *Savepoint `json:"lastSavepoint,omitempty"`

	// Set while a savepoint is in flight.
	TriggerID        string               `json:"triggerId,omitempty"`
	TriggerTimestamp int64                `json:"triggerTimestamp,omitempty"`
	TriggerType      SavepointTriggerType `json:"triggerType,omitempty"`

	SavepointHistory               []Savepoint `json:"savepointHistory,omitempty"`
	LastPeriodicSavepointTimestamp int64       `json:"lastPeriodicSavepointTimestamp,omitempty"`
}

type JobStatus struct {
	JobName       string         `json:"jobName,omitempty"`
	JobID         string         `json:"jobId,omitempty"`
	State         JobStatusState `json:"state,omitempty"`
	StartTime     string         `json:"startTime,omitempty"`
	UpdateTime    string         `json:"updateTime,omitempty"`
	SavepointInfo SavepointInfo  `json:"savepointInfo,omitempty"`
}

// ReconciliationState tracks where the operator is in applying the last
// reconciled spec.
type ReconciliationState string

const (
	ReconciliationDeployed    ReconciliationState = "DEPLOYED"
	ReconciliationUpgrading   ReconciliationState = "UPGRADING"
	ReconciliationRollingBack ReconciliationState = "ROLLING_BACK"
	ReconciliationRolledBack  ReconciliationState = "ROLLED_BACK"
)

type ReconciliationStatus struct {
	ReconciliationTimestamp int64 `json:"reconciliationTimestamp,omitempty"`

	// JSON snapshot of the spec the operator acted on last.
	LastReconciledSpec string `json:"lastReconciledSpec,omitempty"`

	// JSON snapshot of the last spec that was observed running healthily.
	LastStableSpec string `json:"lastStableSpec,omitempty"`

	// +kubebuilder:validation:Enum=DEPLOYED;UPGRADING;ROLLING_BACK;ROLLED_BACK
	State ReconciliationState `json:"state,omitempty"`
}

type FlinkDeploymentStatus struct {
	JobStatus            JobStatus            `json:"jobStatus,omitempty"`
	Error                string               `json:"error,omitempty"`
	ObservedGeneration   int64                `json:"observedGeneration,omitempty"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliationStatus,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=flinkdep
// +kubebuilder:printcolumn:name="Job Status",type="string",JSONPath=".status.jobStatus.state"
// +kubebuilder:printcolumn:name="Reconciliation",type="string",JSONPath=".status.reconciliationStatus.state"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// FlinkDeployment is the Schema for the flinkdeployments API
type FlinkDeployment struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   FlinkDeploymentSpec   `json:"spec,omitempty"`
	Status FlinkDeploymentStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// FlinkDeploymentList contains a list of FlinkDeployment
type FlinkDeploymentList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []FlinkDeployment `json:"items"`
}

func init() {
	SchemeBuilder.Register(&FlinkDeployment{}, &FlinkDeploymentList{})
}

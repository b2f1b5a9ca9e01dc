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
	"encoding/json"
	"fmt"
)

const maxSavepointHistory = 10

// IsBeforeFirstDeployment reports whether no spec was ever reconciled.
func (s *ReconciliationStatus) IsBeforeFirstDeployment() bool {
	return s.LastReconciledSpec == ""
}

// CurrentState returns the reconciliation state, DEPLOYED when unset.
func (s *ReconciliationStatus) CurrentState() ReconciliationState {
	if s.State == "" {
		return ReconciliationDeployed
	}
	return s.State
}

func (s *ReconciliationStatus) DeserializeLastReconciledSpec() (*FlinkDeploymentSpec, error) {
	return deserializeSpec(s.LastReconciledSpec, "last reconciled")
}

// DeserializeLastStableSpec returns nil without error when no spec was ever
// marked stable.
func (s *ReconciliationStatus) DeserializeLastStableSpec() (*FlinkDeploymentSpec, error) {
	return deserializeSpec(s.LastStableSpec, "last stable")
}

func (s *ReconciliationStatus) SerializeAndSetLastReconciledSpec(spec *FlinkDeploymentSpec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to serialize spec: %w", err)
	}
	s.LastReconciledSpec = string(data)
	return nil
}

func (s *ReconciliationStatus) MarkReconciledSpecAsStable() {
	s.LastStableSpec = s.LastReconciledSpec
}

func (s *ReconciliationStatus) IsLastReconciledSpecStable() bool {
	return s.LastReconciledSpec != "" && s.LastReconciledSpec == s.LastStableSpec
}

func deserializeSpec(data string, kind string) (*FlinkDeploymentSpec, error) {
	if data == "" {
		return nil, nil
	}
	spec := &FlinkDeploymentSpec{}
	if err := json.Unmarshal([]byte(data), spec); err != nil {
		return nil, fmt.Errorf("could not deserialize %s spec: %w", kind, err)
	}
	return spec, nil
}

// LastSavepointLocation returns the location of the last completed
// savepoint, nil when there is none.
func (s *SavepointInfo) LastSavepointLocation() *string {
	if s.LastSavepoint == nil || s.LastSavepoint.Location == "" {
		return nil
	}
	location := s.LastSavepoint.Location
	return &location
}

// SavepointInProgress reports whether a triggered savepoint has not
// completed yet.
func (s *SavepointInfo) SavepointInProgress() bool {
	return s.TriggerID != ""
}

func (s *SavepointInfo) SetTrigger(triggerID string, triggerType SavepointTriggerType, timestamp int64) {
	s.TriggerID = triggerID
	s.TriggerType = triggerType
	s.TriggerTimestamp = timestamp
}

func (s *SavepointInfo) ResetTrigger() {
	s.TriggerID = ""
	s.TriggerType = ""
	s.TriggerTimestamp = 0
}

// UpdateLastSavepoint records a completed savepoint, clears the pending
// trigger and keeps a bounded history.
func (s *SavepointInfo) UpdateLastSavepoint(savepoint Savepoint) {
	s.LastSavepoint = &savepoint
	s.SavepointHistory = append(s.SavepointHistory, savepoint)
	if len(s.SavepointHistory) > maxSavepointHistory {
		s.SavepointHistory = s.SavepointHistory[len(s.SavepointHistory)-maxSavepointHistory:]
	}
	s.ResetTrigger()
}

// UpgradeModeOrDefault returns the upgrade mode, stateless when unset.
func (j *JobSpec) UpgradeModeOrDefault() UpgradeMode {
	if j.UpgradeMode == "" {
		return UpgradeModeStateless
	}
	return j.UpgradeMode
}

// StateOrDefault returns the desired job state, running when unset.
func (j *JobSpec) StateOrDefault() JobState {
	if j.State == "" {
		return JobStateRunning
	}
	return j.State
}

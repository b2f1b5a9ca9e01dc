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
	corev1 "k8s.io/api/core/v1"
)

const EnterState = "enter_state"

// ----------------------------------------------
// Kubernetes event attributes
// ----------------------------------------------

type Type string

const (
	TypeNormal  Type = Type(corev1.EventTypeNormal)
	TypeWarning Type = Type(corev1.EventTypeWarning)
)

type Reason string

const (
	ReasonSubmit             Reason = "Submit"
	ReasonSuspended          Reason = "Suspended"
	ReasonSpecChanged        Reason = "SpecChanged"
	ReasonRollback           Reason = "Rollback"
	ReasonRestartFailedJob   Reason = "RestartFailedJob"
	ReasonSavepointTriggered Reason = "SavepointTriggered"
	ReasonRecoveryFailed     Reason = "RecoveryFailed"
	ReasonError              Reason = "Error"
)

// Component is the part of the deployment an event refers to.
type Component string

const (
	ComponentOperator             Component = "Operator"
	ComponentJobManagerDeployment Component = "JobManagerDeployment"
	ComponentJob                  Component = "Job"
)

// ----------------------------------------------
// messages
// ----------------------------------------------

const (
	MsgSuspended        = "Suspending existing deployment."
	MsgSubmit           = "Starting deployment"
	MsgSpecChanged      = "Detected spec change, starting reconciliation."
	MsgRollback         = "Rolling back to the last stable spec."
	MsgRollbackStarted  = "Deployment not ready within the readiness timeout, initiating rollback."
	MsgRestartFailedJob = "Restarting failed job."
)

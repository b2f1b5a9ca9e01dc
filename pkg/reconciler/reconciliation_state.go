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
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/common/events"
	"github.com/apache/flink-k8s-operator/pkg/log"
)

// ----------------------------------------------
// Reconciliation events
// ----------------------------------------------
type ReconciliationEvent int

const (
	UpgradeSpec ReconciliationEvent = iota
	DeploySpec
	RollBackSpec
	CompleteRollback
)

func (e ReconciliationEvent) String() string {
	return [...]string{"UpgradeSpec", "DeploySpec", "RollBackSpec", "CompleteRollback"}[e]
}

var allReconciliationStates = []string{
	string(v1beta1.ReconciliationDeployed),
	string(v1beta1.ReconciliationUpgrading),
	string(v1beta1.ReconciliationRollingBack),
	string(v1beta1.ReconciliationRolledBack),
}

func newReconciliationState(initial v1beta1.ReconciliationState) *fsm.FSM {
	return fsm.NewFSM(
		string(initial), fsm.Events{
			{
				Name: UpgradeSpec.String(),
				Src:  allReconciliationStates,
				Dst:  string(v1beta1.ReconciliationUpgrading),
			},
			{
				Name: DeploySpec.String(),
				Src:  allReconciliationStates,
				Dst:  string(v1beta1.ReconciliationDeployed),
			},
			{
				Name: RollBackSpec.String(),
				Src:  []string{string(v1beta1.ReconciliationDeployed), string(v1beta1.ReconciliationUpgrading), string(v1beta1.ReconciliationRollingBack)},
				Dst:  string(v1beta1.ReconciliationRollingBack),
			},
			{
				Name: CompleteRollback.String(),
				Src:  allReconciliationStates,
				Dst:  string(v1beta1.ReconciliationRolledBack),
			},
		},
		fsm.Callbacks{
			events.EnterState: func(_ context.Context, event *fsm.Event) {
				resource := event.Args[0].(*v1beta1.FlinkDeployment) //nolint:errcheck
				log.Log(log.Reconciler).Debug("reconciliation state transition",
					zap.String("namespace", resource.Namespace),
					zap.String("name", resource.Name),
					zap.String("source", event.Src),
					zap.String("destination", event.Dst),
					zap.String("event", event.Event))
			},
		},
	)
}

// TransitionState applies event to the reconciliation state of the resource.
// Staying in the same state is not an error; an event that is not allowed
// from the current state is.
func TransitionState(resource *v1beta1.FlinkDeployment, event ReconciliationEvent) error {
	status := &resource.Status.ReconciliationStatus
	sm := newReconciliationState(status.CurrentState())
	if err := sm.Event(context.Background(), event.String(), resource); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			return fmt.Errorf("reconciliation state %s does not allow %s: %w", status.CurrentState(), event, err)
		}
	}
	status.State = v1beta1.ReconciliationState(sm.Current())
	return nil
}

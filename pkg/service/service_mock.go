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

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/locking"
	"github.com/apache/flink-k8s-operator/pkg/log"
)

type CallType string

const (
	CallDeploy           CallType = "deploy"
	CallCancel           CallType = "cancel"
	CallTriggerSavepoint CallType = "triggerSavepoint"
	CallDeleteCluster    CallType = "deleteCluster"
)

// Call is one recorded invocation of the mocked service.
type Call struct {
	Type              CallType
	UpgradeMode       v1beta1.UpgradeMode
	Spec              *v1beta1.FlinkDeploymentSpec
	Config            conf.Configuration
	Savepoint         *string
	RequireHaMetadata bool
	DeleteHaData      bool
	TriggerType       v1beta1.SavepointTriggerType
}

// MockedJobService records every call in order and simulates the status
// changes a real service makes.
type MockedJobService struct {
	calls          []Call
	haAvailable    bool
	deployErr      error
	cancelErr      error
	savepointCount int
	lock           locking.Mutex
}

func NewMockedJobService() *MockedJobService {
	return &MockedJobService{}
}

func (m *MockedJobService) SetHaMetadataAvailable(available bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.haAvailable = available
}

func (m *MockedJobService) MockDeployError(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.deployErr = err
}

func (m *MockedJobService) MockCancelError(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.cancelErr = err
}

func (m *MockedJobService) Calls() []Call {
	m.lock.Lock()
	defer m.lock.Unlock()
	result := make([]Call, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallTypes returns the type of every recorded call in order.
func (m *MockedJobService) CallTypes() []CallType {
	m.lock.Lock()
	defer m.lock.Unlock()
	result := make([]CallType, 0, len(m.calls))
	for _, c := range m.calls {
		result = append(result, c.Type)
	}
	return result
}

func (m *MockedJobService) Reset() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls = nil
}

func (m *MockedJobService) Deploy(_ context.Context, resource *v1beta1.FlinkDeployment, spec *v1beta1.FlinkDeploymentSpec,
	config conf.Configuration, savepoint *string, requireHaMetadata bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	var savepointCopy *string
	if savepoint != nil {
		location := *savepoint
		savepointCopy = &location
	}
	var mode v1beta1.UpgradeMode
	if spec.Job != nil {
		mode = spec.Job.UpgradeMode
	}
	m.calls = append(m.calls, Call{
		Type:              CallDeploy,
		UpgradeMode:       mode,
		Spec:              spec.DeepCopy(),
		Config:            config.Clone(),
		Savepoint:         savepointCopy,
		RequireHaMetadata: requireHaMetadata,
	})
	if m.deployErr != nil {
		return m.deployErr
	}
	resource.Status.JobStatus.JobID = uuid.NewString()
	log.Log(log.Service).Info("mocked job deployed",
		zap.String("resource", resource.Name),
		zap.Bool("requireHaMetadata", requireHaMetadata))
	return nil
}

func (m *MockedJobService) CancelJob(_ context.Context, resource *v1beta1.FlinkDeployment, mode v1beta1.UpgradeMode,
	config conf.Configuration) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls = append(m.calls, Call{
		Type:        CallCancel,
		UpgradeMode: mode,
		Config:      config.Clone(),
	})
	if m.cancelErr != nil {
		return m.cancelErr
	}
	jobStatus := &resource.Status.JobStatus
	switch mode {
	case v1beta1.UpgradeModeSavepoint:
		m.savepointCount++
		jobStatus.SavepointInfo.UpdateLastSavepoint(v1beta1.Savepoint{
			TimeStamp:   time.Now().UnixMilli(),
			Location:    fmt.Sprintf("savepoint_%d", m.savepointCount),
			TriggerType: v1beta1.SavepointTriggerUpgrade,
		})
		jobStatus.State = v1beta1.JobStatusFinished
	case v1beta1.UpgradeModeLastState:
		jobStatus.State = v1beta1.JobStatusSuspended
	default:
		jobStatus.State = v1beta1.JobStatusCanceled
	}
	return nil
}

func (m *MockedJobService) IsHaMetadataAvailable(_ context.Context, _ conf.Configuration) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.haAvailable
}

func (m *MockedJobService) TriggerSavepoint(_ context.Context, resource *v1beta1.FlinkDeployment,
	triggerType v1beta1.SavepointTriggerType, config conf.Configuration) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls = append(m.calls, Call{
		Type:        CallTriggerSavepoint,
		TriggerType: triggerType,
		Config:      config.Clone(),
	})
	resource.Status.JobStatus.SavepointInfo.SetTrigger(uuid.NewString(), triggerType, time.Now().UnixMilli())
	return nil
}

func (m *MockedJobService) DeleteClusterDeployment(_ context.Context, _ metav1.ObjectMeta, status *v1beta1.FlinkDeploymentStatus,
	deleteHaData bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls = append(m.calls, Call{
		Type:         CallDeleteCluster,
		DeleteHaData: deleteHaData,
	})
	status.JobStatus.State = ""
	return nil
}

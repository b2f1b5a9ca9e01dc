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

package deployment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"gotest.tools/v3/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/common/events"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/reconciler"
	"github.com/apache/flink-k8s-operator/pkg/service"
)

type mockAdvisor struct {
	trigger bool
	calls   int
}

func (m *mockAdvisor) SavepointInProgress(jobStatus *v1beta1.JobStatus) bool {
	return jobStatus.SavepointInfo.SavepointInProgress()
}

func (m *mockAdvisor) TriggerIfNeeded(_ context.Context, _ service.JobExecutionService, _ *v1beta1.FlinkDeployment,
	_ conf.Configuration) (bool, error) {
	m.calls++
	return m.trigger, nil
}

type recordingPersister struct {
	statuses []v1beta1.FlinkDeploymentStatus
	err      error
}

func (p *recordingPersister) PatchAndCacheStatus(_ context.Context, resource *v1beta1.FlinkDeployment) error {
	if p.err != nil {
		return p.err
	}
	p.statuses = append(p.statuses, *resource.Status.DeepCopy())
	return nil
}

type testContext struct {
	svc        *service.MockedJobService
	recorder   *events.MockedRecorder
	persister  *recordingPersister
	advisor    *mockAdvisor
	clock      *clocktesting.FakeClock
	reconciler *JobReconciler
	configs    *conf.ConfigManager
}

func newTestContext() *testContext {
	tc := &testContext{
		svc:       service.NewMockedJobService(),
		recorder:  events.NewMockedRecorder(),
		persister: &recordingPersister{},
		advisor:   &mockAdvisor{},
		clock:     clocktesting.NewFakeClock(time.UnixMilli(1_000_000)),
		configs:   conf.NewStaticConfigManager(conf.Configuration{}),
	}
	tc.reconciler = NewJobReconciler(ApplicationStrategy{}, tc.recorder, tc.persister, tc.advisor, tc.clock)
	return tc
}

func newResource(state v1beta1.JobState, mode v1beta1.UpgradeMode) *v1beta1.FlinkDeployment {
	return &v1beta1.FlinkDeployment{
		ObjectMeta: metav1.ObjectMeta{Name: "state-machine", Namespace: "flink", Generation: 1},
		Spec: v1beta1.FlinkDeploymentSpec{
			Image:              "flink:1.17",
			FlinkVersion:       v1beta1.FlinkVersion1_17,
			FlinkConfiguration: map[string]string{},
			Job: &v1beta1.JobSpec{
				JarURI:      "local:///opt/flink/examples/StateMachineExample.jar",
				Parallelism: 2,
				State:       state,
				UpgradeMode: mode,
			},
		},
	}
}

// deployed records the current spec as deployed and the job as observed in jobState.
func (tc *testContext) deployed(t *testing.T, resource *v1beta1.FlinkDeployment, jobState v1beta1.JobStatusState) *v1beta1.FlinkDeployment {
	assert.NilError(t, reconciler.UpdateStatusForDeployedSpec(resource, resource.Spec.DeepCopy(), tc.clock))
	resource.Status.JobStatus.State = jobState
	return resource
}

func (tc *testContext) context(resource *v1beta1.FlinkDeployment) *ResourceContext {
	return NewResourceContext(resource, tc.svc, tc.configs)
}

func TestReadyToReconcileBeforeFirstDeployment(t *testing.T) {
	tc := newTestContext()
	resource := newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint)
	resource.Status.JobStatus.SavepointInfo.SetTrigger("trigger", v1beta1.SavepointTriggerManual, 1)
	resource.Status.JobStatus.State = v1beta1.JobStatusFailing
	assert.Assert(t, tc.reconciler.ReadyToReconcile(tc.context(resource)))
}

func TestReadyToReconcilePendingSavepoint(t *testing.T) {
	tc := newTestContext()
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint), v1beta1.JobStatusRunning)
	assert.Assert(t, tc.reconciler.ReadyToReconcile(tc.context(resource)))

	resource.Status.JobStatus.SavepointInfo.SetTrigger("trigger", v1beta1.SavepointTriggerPeriodic, 1)
	assert.Assert(t, !tc.reconciler.ReadyToReconcile(tc.context(resource)))

	ignoring := newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint)
	ignoring.Spec.FlinkConfiguration[conf.JobUpgradeIgnorePendingSavepoint.Key] = "true"
	tc.deployed(t, ignoring, v1beta1.JobStatusRunning)
	ignoring.Status.JobStatus.SavepointInfo.SetTrigger("trigger", v1beta1.SavepointTriggerPeriodic, 1)
	assert.Assert(t, tc.reconciler.ReadyToReconcile(tc.context(ignoring)))
}

func TestAvailableUpgradeMode(t *testing.T) {
	haConfig := map[string]string{conf.HighAvailabilityType.Key: "kubernetes"}
	tests := []struct {
		name         string
		deployedMode v1beta1.UpgradeMode
		desiredMode  v1beta1.UpgradeMode
		deployedConf map[string]string
		jobState     v1beta1.JobStatusState
		haAvailable  bool
		newVersion   bool
		expected     v1beta1.UpgradeMode
		ok           bool
	}{
		{"stateless while starting", v1beta1.UpgradeModeSavepoint, v1beta1.UpgradeModeStateless, nil, v1beta1.JobStatusInitializing, false, false, v1beta1.UpgradeModeStateless, true},
		{"stateless while failing", v1beta1.UpgradeModeLastState, v1beta1.UpgradeModeStateless, haConfig, v1beta1.JobStatusFailing, true, false, v1beta1.UpgradeModeStateless, true},
		{"terminal without ha", v1beta1.UpgradeModeLastState, v1beta1.UpgradeModeLastState, haConfig, v1beta1.JobStatusFailed, false, false, v1beta1.UpgradeModeSavepoint, true},
		{"finished without ha", v1beta1.UpgradeModeSavepoint, v1beta1.UpgradeModeSavepoint, nil, v1beta1.JobStatusFinished, false, false, v1beta1.UpgradeModeSavepoint, true},
		{"terminal with ha defers", v1beta1.UpgradeModeLastState, v1beta1.UpgradeModeLastState, haConfig, v1beta1.JobStatusCanceled, true, false, "", false},
		{"running version change", v1beta1.UpgradeModeLastState, v1beta1.UpgradeModeLastState, haConfig, v1beta1.JobStatusRunning, true, true, v1beta1.UpgradeModeSavepoint, true},
		{"running switch to last-state without ha", v1beta1.UpgradeModeSavepoint, v1beta1.UpgradeModeLastState, nil, v1beta1.JobStatusRunning, false, false, v1beta1.UpgradeModeSavepoint, true},
		{"running switch to last-state with ha", v1beta1.UpgradeModeSavepoint, v1beta1.UpgradeModeLastState, haConfig, v1beta1.JobStatusRunning, true, false, v1beta1.UpgradeModeLastState, true},
		{"running last-state", v1beta1.UpgradeModeLastState, v1beta1.UpgradeModeLastState, haConfig, v1beta1.JobStatusRunning, true, false, v1beta1.UpgradeModeLastState, true},
		{"running savepoint", v1beta1.UpgradeModeSavepoint, v1beta1.UpgradeModeSavepoint, nil, v1beta1.JobStatusRunning, false, false, v1beta1.UpgradeModeSavepoint, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestContext()
			tc.svc.SetHaMetadataAvailable(tt.haAvailable)
			resource := newResource(v1beta1.JobStateRunning, tt.deployedMode)
			for k, v := range tt.deployedConf {
				resource.Spec.FlinkConfiguration[k] = v
			}
			tc.deployed(t, resource, tt.jobState)
			resource.Spec.Job.UpgradeMode = tt.desiredMode
			if tt.newVersion {
				resource.Spec.FlinkVersion = v1beta1.FlinkVersion1_18
			}
			mode, ok, err := tc.reconciler.AvailableUpgradeMode(context.Background(), tc.context(resource))
			assert.NilError(t, err)
			assert.Equal(t, ok, tt.ok)
			assert.Equal(t, mode, tt.expected)
		})
	}
}

func TestAvailableUpgradeModeDefers(t *testing.T) {
	deferred := []v1beta1.JobStatusState{
		v1beta1.JobStatusInitializing,
		v1beta1.JobStatusCreated,
		v1beta1.JobStatusFailing,
		v1beta1.JobStatusCancelling,
		v1beta1.JobStatusRestarting,
		v1beta1.JobStatusSuspended,
		v1beta1.JobStatusReconciling,
		"",
		"UNKNOWN",
	}
	for _, state := range deferred {
		t.Run(string(state), func(t *testing.T) {
			tc := newTestContext()
			resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeLastState), state)
			mode, ok, err := tc.reconciler.AvailableUpgradeMode(context.Background(), tc.context(resource))
			assert.NilError(t, err)
			assert.Assert(t, !ok)
			assert.Equal(t, mode, v1beta1.UpgradeMode(""))
		})
	}
}

func TestSpecChangeDeferredWithoutMutation(t *testing.T) {
	tc := newTestContext()
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint), v1beta1.JobStatusRestarting)
	resource.Spec.Job.Parallelism = 4
	before := resource.DeepCopy()

	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(context.Background(), rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, !applied)
	assert.DeepEqual(t, resource.Spec, before.Spec)
	assert.DeepEqual(t, resource.Status, before.Status)
	assert.Equal(t, len(tc.svc.Calls()), 0)
	assert.Equal(t, len(tc.recorder.Events()), 0)
}

func TestRunningToRunningCancelsThenRestores(t *testing.T) {
	tc := newTestContext()
	ctx := context.Background()
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint), v1beta1.JobStatusRunning)
	resource.Spec.Job.Parallelism = 4

	// first pass suspends the running job
	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(ctx, rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, applied)
	assert.DeepEqual(t, tc.svc.CallTypes(), []service.CallType{service.CallCancel})
	assert.Equal(t, tc.svc.Calls()[0].UpgradeMode, v1beta1.UpgradeModeSavepoint)
	assert.DeepEqual(t, tc.recorder.Reasons(), []events.Reason{events.ReasonSuspended})
	assert.Equal(t, resource.Status.ReconciliationStatus.State, v1beta1.ReconciliationUpgrading)
	lastJob, err := reconciler.LastReconciledJob(resource)
	assert.NilError(t, err)
	assert.Equal(t, lastJob.State, v1beta1.JobStateSuspended)
	assert.Equal(t, lastJob.UpgradeMode, v1beta1.UpgradeModeSavepoint)
	assert.Equal(t, lastJob.Parallelism, int32(4))

	// the attempt is still pending, second pass restores the job
	changed, err := reconciler.IsSpecChanged(resource)
	assert.NilError(t, err)
	assert.Assert(t, changed)
	rc = tc.context(resource)
	applied, err = tc.reconciler.ReconcileSpecChange(ctx, rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, applied)
	assert.DeepEqual(t, tc.svc.CallTypes(), []service.CallType{service.CallCancel, service.CallDeploy})
	deploy := tc.svc.Calls()[1]
	assert.Equal(t, *deploy.Savepoint, "savepoint_1")
	assert.Assert(t, !deploy.RequireHaMetadata)
	assert.Equal(t, deploy.UpgradeMode, v1beta1.UpgradeModeSavepoint)
	assert.Equal(t, deploy.Spec.Job.Parallelism, int32(4))

	// status was persisted as upgrading before the deploy call
	assert.Equal(t, len(tc.persister.statuses), 1)
	assert.Equal(t, tc.persister.statuses[0].ReconciliationStatus.State, v1beta1.ReconciliationUpgrading)

	assert.Equal(t, resource.Status.ReconciliationStatus.State, v1beta1.ReconciliationDeployed)
	assert.Equal(t, resource.Status.JobStatus.State, v1beta1.JobStatusReconciling)
	lastJob, err = reconciler.LastReconciledJob(resource)
	assert.NilError(t, err)
	assert.Equal(t, lastJob.State, v1beta1.JobStateRunning)
	changed, err = reconciler.IsSpecChanged(resource)
	assert.NilError(t, err)
	assert.Assert(t, !changed)
}

func TestRunningToSuspendedWithSavepoint(t *testing.T) {
	tc := newTestContext()
	tc.svc.SetHaMetadataAvailable(false)
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint), v1beta1.JobStatusRunning)
	resource.Spec.Job.State = v1beta1.JobStateSuspended

	mode, ok, err := tc.reconciler.AvailableUpgradeMode(context.Background(), tc.context(resource))
	assert.NilError(t, err)
	assert.Assert(t, ok)
	assert.Equal(t, mode, v1beta1.UpgradeModeSavepoint)

	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(context.Background(), rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, applied)
	assert.DeepEqual(t, tc.svc.CallTypes(), []service.CallType{service.CallCancel})
	assert.Equal(t, tc.svc.Calls()[0].UpgradeMode, v1beta1.UpgradeModeSavepoint)
	assert.Equal(t, len(tc.persister.statuses), 0)

	status := resource.Status.ReconciliationStatus
	assert.Equal(t, status.State, v1beta1.ReconciliationDeployed)
	assert.Assert(t, status.IsLastReconciledSpecStable())
	lastJob, err := reconciler.LastReconciledJob(resource)
	assert.NilError(t, err)
	assert.Equal(t, lastJob.State, v1beta1.JobStateSuspended)
	assert.Equal(t, lastJob.UpgradeMode, v1beta1.UpgradeModeSavepoint)
	changed, err := reconciler.IsSpecChanged(resource)
	assert.NilError(t, err)
	assert.Assert(t, !changed)
}

func TestVersionUpgradeForcesSavepoint(t *testing.T) {
	tc := newTestContext()
	tc.svc.SetHaMetadataAvailable(true)
	ctx := context.Background()
	resource := newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeLastState)
	resource.Spec.FlinkConfiguration[conf.HighAvailabilityType.Key] = "kubernetes"
	tc.deployed(t, resource, v1beta1.JobStatusRunning)
	resource.Spec.FlinkVersion = v1beta1.FlinkVersion1_18

	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(ctx, rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, applied)
	assert.Equal(t, tc.svc.Calls()[0].UpgradeMode, v1beta1.UpgradeModeSavepoint)
	// the desired spec keeps what the user asked for
	assert.Equal(t, resource.Spec.Job.UpgradeMode, v1beta1.UpgradeModeLastState)

	rc = tc.context(resource)
	applied, err = tc.reconciler.ReconcileSpecChange(ctx, rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, applied)
	assert.DeepEqual(t, tc.svc.CallTypes(), []service.CallType{service.CallCancel, service.CallDeploy})
	deploy := tc.svc.Calls()[1]
	assert.Assert(t, !deploy.RequireHaMetadata)
	assert.Equal(t, deploy.UpgradeMode, v1beta1.UpgradeModeSavepoint)
	assert.Equal(t, deploy.Spec.FlinkVersion, v1beta1.FlinkVersion1_18)
	assert.Equal(t, *deploy.Savepoint, "savepoint_1")
}

func TestSuspendedToRunningInheritsUpgradeMode(t *testing.T) {
	tc := newTestContext()
	tc.svc.SetHaMetadataAvailable(true)
	resource := tc.deployed(t, newResource(v1beta1.JobStateSuspended, v1beta1.UpgradeModeLastState), v1beta1.JobStatusSuspended)
	resource.Status.JobStatus.SavepointInfo.UpdateLastSavepoint(v1beta1.Savepoint{Location: "s3://savepoints/sp-1"})
	resource.Spec.Job.State = v1beta1.JobStateRunning
	resource.Spec.Job.UpgradeMode = v1beta1.UpgradeModeSavepoint

	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(context.Background(), rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, applied)
	deploy := tc.svc.Calls()[0]
	assert.Equal(t, deploy.UpgradeMode, v1beta1.UpgradeModeLastState)
	assert.Assert(t, deploy.RequireHaMetadata)
	assert.Equal(t, *deploy.Savepoint, "s3://savepoints/sp-1")
	lastJob, err := reconciler.LastReconciledJob(resource)
	assert.NilError(t, err)
	assert.Equal(t, lastJob.UpgradeMode, v1beta1.UpgradeModeLastState)
}

func TestSuspendedToRunningStatelessDoesNotInherit(t *testing.T) {
	tc := newTestContext()
	tc.svc.SetHaMetadataAvailable(true)
	resource := tc.deployed(t, newResource(v1beta1.JobStateSuspended, v1beta1.UpgradeModeLastState), v1beta1.JobStatusSuspended)
	resource.Status.JobStatus.SavepointInfo.UpdateLastSavepoint(v1beta1.Savepoint{Location: "s3://savepoints/sp-1"})
	resource.Spec.Job.State = v1beta1.JobStateRunning
	resource.Spec.Job.UpgradeMode = v1beta1.UpgradeModeStateless

	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(context.Background(), rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, applied)
	deploy := tc.svc.Calls()[0]
	assert.Equal(t, deploy.UpgradeMode, v1beta1.UpgradeModeStateless)
	assert.Assert(t, deploy.Savepoint == nil, "stateless jobs start empty")
}

func TestRestoreFailsWithoutHaMetadata(t *testing.T) {
	tc := newTestContext()
	tc.svc.SetHaMetadataAvailable(false)
	resource := tc.deployed(t, newResource(v1beta1.JobStateSuspended, v1beta1.UpgradeModeLastState), v1beta1.JobStatusSuspended)
	resource.Spec.Job.State = v1beta1.JobStateRunning

	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(context.Background(), rc, rc.DeployConfig(&resource.Spec))
	assert.Assert(t, !applied)
	assert.Assert(t, IsRecoveryFailure(err), "unexpected error: %v", err)
	assert.Equal(t, len(tc.svc.Calls()), 0, "job must not be started without its state")
	assert.DeepEqual(t, tc.recorder.Reasons(), []events.Reason{events.ReasonRecoveryFailed})
	// the attempt stays recorded for the next pass
	assert.Equal(t, resource.Status.ReconciliationStatus.State, v1beta1.ReconciliationUpgrading)
}

func TestSuspendedSpecChangeIsRecorded(t *testing.T) {
	tc := newTestContext()
	resource := tc.deployed(t, newResource(v1beta1.JobStateSuspended, v1beta1.UpgradeModeSavepoint), v1beta1.JobStatusFinished)
	resource.Spec.Job.Parallelism = 8

	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(context.Background(), rc, rc.DeployConfig(&resource.Spec))
	assert.NilError(t, err)
	assert.Assert(t, applied)
	assert.Equal(t, len(tc.svc.Calls()), 0)
	lastJob, err := reconciler.LastReconciledJob(resource)
	assert.NilError(t, err)
	assert.Equal(t, lastJob.Parallelism, int32(8))
}

func TestCollaboratorErrorsPropagate(t *testing.T) {
	tc := newTestContext()
	cancelErr := errors.New("cancel timed out")
	tc.svc.MockCancelError(cancelErr)
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeStateless), v1beta1.JobStatusRunning)
	resource.Spec.Job.Parallelism = 4
	before := resource.Status.DeepCopy()

	rc := tc.context(resource)
	applied, err := tc.reconciler.ReconcileSpecChange(context.Background(), rc, rc.DeployConfig(&resource.Spec))
	assert.Assert(t, !applied)
	assert.Assert(t, errors.Is(err, cancelErr))
	assert.DeepEqual(t, &resource.Status, before)

	persistErr := errors.New("conflict")
	tc = newTestContext()
	tc.persister.err = persistErr
	resource = tc.deployed(t, newResource(v1beta1.JobStateSuspended, v1beta1.UpgradeModeStateless), v1beta1.JobStatusFinished)
	resource.Spec.Job.State = v1beta1.JobStateRunning
	rc = tc.context(resource)
	_, err = tc.reconciler.ReconcileSpecChange(context.Background(), rc, rc.DeployConfig(&resource.Spec))
	assert.Assert(t, errors.Is(err, persistErr))
	assert.Equal(t, len(tc.svc.Calls()), 0, "no deployment before the status is persisted")
}

func deployUnstableUpgrade(t *testing.T, tc *testContext, mode v1beta1.UpgradeMode) (*v1beta1.FlinkDeployment, *v1beta1.FlinkDeploymentSpec) {
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, mode), v1beta1.JobStatusRunning)
	resource.Status.ReconciliationStatus.MarkReconciledSpecAsStable()
	stable := resource.Spec.DeepCopy()

	resource.Spec.Job.Parallelism = 16
	tc.deployed(t, resource, v1beta1.JobStatusRestarting)
	return resource, stable
}

func TestRollback(t *testing.T) {
	tc := newTestContext()
	tc.svc.SetHaMetadataAvailable(true)
	resource, stable := deployUnstableUpgrade(t, tc, v1beta1.UpgradeModeSavepoint)

	assert.NilError(t, tc.reconciler.Rollback(context.Background(), tc.context(resource)))
	assert.DeepEqual(t, tc.svc.CallTypes(), []service.CallType{service.CallCancel, service.CallDeploy})
	assert.Equal(t, tc.svc.Calls()[0].UpgradeMode, v1beta1.UpgradeModeLastState)

	deploy := tc.svc.Calls()[1]
	expected := stable.DeepCopy()
	expected.Job.UpgradeMode = v1beta1.UpgradeModeLastState
	assert.DeepEqual(t, deploy.Spec, expected, cmpopts.EquateEmpty())
	assert.Assert(t, deploy.RequireHaMetadata)
	assert.Equal(t, resource.Status.ReconciliationStatus.State, v1beta1.ReconciliationRolledBack)
	assert.DeepEqual(t, tc.recorder.Reasons(), []events.Reason{events.ReasonRollback, events.ReasonSubmit})

	deployed, err := reconciler.GetDeployedSpec(resource)
	assert.NilError(t, err)
	assert.Equal(t, deployed.Job.Parallelism, int32(2))
	// the desired spec is left alone
	assert.Equal(t, resource.Spec.Job.Parallelism, int32(16))
}

func TestRollbackStateless(t *testing.T) {
	tc := newTestContext()
	resource, _ := deployUnstableUpgrade(t, tc, v1beta1.UpgradeModeStateless)

	assert.NilError(t, tc.reconciler.Rollback(context.Background(), tc.context(resource)))
	assert.Equal(t, tc.svc.Calls()[0].UpgradeMode, v1beta1.UpgradeModeStateless)
	deploy := tc.svc.Calls()[1]
	assert.Assert(t, !deploy.RequireHaMetadata)
	assert.Equal(t, deploy.UpgradeMode, v1beta1.UpgradeModeLastState)
}

func TestRollbackWithoutStableSpec(t *testing.T) {
	tc := newTestContext()
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint), v1beta1.JobStatusRunning)
	err := tc.reconciler.Rollback(context.Background(), tc.context(resource))
	assert.Assert(t, errors.Is(err, ErrNoStableSpec))
	assert.Equal(t, len(tc.svc.Calls()), 0)
}

func TestRestartFailedJob(t *testing.T) {
	tc := newTestContext()
	resource := newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint)
	resource.Spec.FlinkConfiguration[conf.JobRestartFailed.Key] = "true"
	tc.deployed(t, resource, v1beta1.JobStatusFailed)
	resource.Status.Error = "job failed"
	resource.Status.JobStatus.SavepointInfo.UpdateLastSavepoint(v1beta1.Savepoint{Location: "s3://savepoints/sp-7"})
	// the desired spec is not what gets resubmitted
	resource.Spec.Job.Parallelism = 32

	handled, err := tc.reconciler.ReconcileOtherChanges(context.Background(), tc.context(resource))
	assert.NilError(t, err)
	assert.Assert(t, handled)
	assert.Equal(t, resource.Status.Error, "")
	assert.DeepEqual(t, tc.svc.CallTypes(), []service.CallType{service.CallDeleteCluster, service.CallDeploy})
	assert.Assert(t, !tc.svc.Calls()[0].DeleteHaData)
	deploy := tc.svc.Calls()[1]
	assert.Equal(t, deploy.Spec.Job.Parallelism, int32(2))
	assert.Equal(t, *deploy.Savepoint, "s3://savepoints/sp-7")
	assert.Assert(t, !deploy.RequireHaMetadata)
	assert.Equal(t, tc.advisor.calls, 0)
}

func TestOtherChangesDelegateToSavepointAdvisor(t *testing.T) {
	tc := newTestContext()
	tc.advisor.trigger = true
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint), v1beta1.JobStatusFailed)
	resource.Status.Error = "job failed"

	handled, err := tc.reconciler.ReconcileOtherChanges(context.Background(), tc.context(resource))
	assert.NilError(t, err)
	assert.Assert(t, handled)
	assert.Equal(t, tc.advisor.calls, 1)
	assert.Equal(t, resource.Status.Error, "job failed")
	assert.Equal(t, len(tc.svc.Calls()), 0)

	tc.advisor.trigger = false
	handled, err = tc.reconciler.ReconcileOtherChanges(context.Background(), tc.context(resource))
	assert.NilError(t, err)
	assert.Assert(t, !handled)
}

func TestResubmitJobWithHaForcesLastState(t *testing.T) {
	tc := newTestContext()
	tc.svc.SetHaMetadataAvailable(true)
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint), v1beta1.JobStatusFailed)
	assert.NilError(t, tc.reconciler.ResubmitJob(context.Background(), tc.context(resource), true))
	deploy := tc.svc.Calls()[0]
	assert.Equal(t, deploy.UpgradeMode, v1beta1.UpgradeModeLastState)
	assert.Assert(t, deploy.RequireHaMetadata)
}

func TestShouldRollBack(t *testing.T) {
	tests := []struct {
		name        string
		enabled     bool
		mode        v1beta1.UpgradeMode
		elapsed     time.Duration
		haAvailable bool
		setup       func(resource *v1beta1.FlinkDeployment)
		expected    bool
	}{
		{"rollback disabled", false, v1beta1.UpgradeModeSavepoint, 2 * time.Minute, true, nil, false},
		{"readiness timeout not reached", true, v1beta1.UpgradeModeSavepoint, 30 * time.Second, true, nil, false},
		{"timed out", true, v1beta1.UpgradeModeSavepoint, 2 * time.Minute, true, nil, true},
		{"timed out without ha", true, v1beta1.UpgradeModeSavepoint, 2 * time.Minute, false, nil, false},
		{"stateless needs no ha", true, v1beta1.UpgradeModeStateless, 2 * time.Minute, false, nil, true},
		{"already stable", true, v1beta1.UpgradeModeSavepoint, 2 * time.Minute, true, func(resource *v1beta1.FlinkDeployment) {
			resource.Status.ReconciliationStatus.MarkReconciledSpecAsStable()
		}, false},
		{"already rolled back", true, v1beta1.UpgradeModeSavepoint, 2 * time.Minute, true, func(resource *v1beta1.FlinkDeployment) {
			resource.Status.ReconciliationStatus.State = v1beta1.ReconciliationRolledBack
		}, false},
		{"rollback in progress", false, v1beta1.UpgradeModeSavepoint, 0, false, func(resource *v1beta1.FlinkDeployment) {
			resource.Status.ReconciliationStatus.State = v1beta1.ReconciliationRollingBack
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestContext()
			tc.svc.SetHaMetadataAvailable(tt.haAvailable)
			resource := newResource(v1beta1.JobStateRunning, tt.mode)
			if tt.enabled {
				resource.Spec.FlinkConfiguration[conf.DeploymentRollbackEnabled.Key] = "true"
			}
			tc.deployed(t, resource, v1beta1.JobStatusRunning)
			resource.Status.ReconciliationStatus.MarkReconciledSpecAsStable()
			resource.Spec.Job.Parallelism = 16
			tc.deployed(t, resource, v1beta1.JobStatusRestarting)
			if tt.setup != nil {
				tt.setup(resource)
			}
			tc.clock.Step(tt.elapsed)

			rollBack, err := tc.reconciler.ShouldRollBack(context.Background(), tc.context(resource))
			assert.NilError(t, err)
			assert.Equal(t, rollBack, tt.expected)
		})
	}
}

func TestNoRollbackToSuspendedSpec(t *testing.T) {
	tc := newTestContext()
	resource := newResource(v1beta1.JobStateSuspended, v1beta1.UpgradeModeSavepoint)
	resource.Spec.FlinkConfiguration[conf.DeploymentRollbackEnabled.Key] = "true"
	tc.deployed(t, resource, v1beta1.JobStatusFinished)
	resource.Spec.Job.State = v1beta1.JobStateRunning
	tc.deployed(t, resource, v1beta1.JobStatusRestarting)
	tc.clock.Step(time.Hour)

	rollBack, err := tc.reconciler.ShouldRollBack(context.Background(), tc.context(resource))
	assert.NilError(t, err)
	assert.Assert(t, !rollBack)
}

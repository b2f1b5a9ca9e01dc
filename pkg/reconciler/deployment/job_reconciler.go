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

// SavepointAdvisor tracks in flight savepoints and triggers new ones.
type SavepointAdvisor interface {
	SavepointInProgress(jobStatus *v1beta1.JobStatus) bool
	TriggerIfNeeded(ctx context.Context, svc service.JobExecutionService, resource *v1beta1.FlinkDeployment,
		config conf.Configuration) (bool, error)
}

// JobReconciler drives the job of a resource towards its desired state:
// it suspends, upgrades, restores, resubmits and rolls back jobs.
type JobReconciler struct {
	strategy   CancelStrategy
	recorder   events.EventRecorder
	persister  reconciler.StatusPersister
	savepoints SavepointAdvisor
	clock      clock.PassiveClock
	logger     *zap.Logger
}

func NewJobReconciler(strategy CancelStrategy, recorder events.EventRecorder, persister reconciler.StatusPersister,
	savepoints SavepointAdvisor, clk clock.PassiveClock) *JobReconciler {
	return &JobReconciler{
		strategy:   strategy,
		recorder:   recorder,
		persister:  persister,
		savepoints: savepoints,
		clock:      clk,
		logger:     log.Log(log.JobReconciler),
	}
}

func (r *JobReconciler) passLogger(resource *v1beta1.FlinkDeployment) *zap.Logger {
	return r.logger.With(
		zap.String("namespace", resource.Namespace),
		zap.String("name", resource.Name))
}

// ReadyToReconcile reports whether the job may be changed now. Changes wait
// for a pending savepoint unless the configuration says to ignore it.
func (r *JobReconciler) ReadyToReconcile(rc *ResourceContext) bool {
	status := &rc.Resource.Status
	if status.ReconciliationStatus.IsBeforeFirstDeployment() {
		return true
	}
	if !rc.ObserveConfig().GetBool(conf.JobUpgradeIgnorePendingSavepoint) &&
		r.savepoints.SavepointInProgress(&status.JobStatus) {
		r.passLogger(rc.Resource).Info("delaying job reconciliation until pending savepoint is completed")
		return false
	}
	return true
}

// AvailableUpgradeMode returns the upgrade mode that is safe to use for the
// running job. ok is false when no upgrade is possible right now.
func (r *JobReconciler) AvailableUpgradeMode(ctx context.Context, rc *ResourceContext) (mode v1beta1.UpgradeMode, ok bool, err error) {
	resource := rc.Resource
	status := &resource.Status
	logger := r.passLogger(resource)
	desired := resource.Spec.Job.UpgradeModeOrDefault()

	if desired == v1beta1.UpgradeModeStateless {
		logger.Info("stateless job, ready for upgrade")
		return v1beta1.UpgradeModeStateless, true, nil
	}

	if reconciler.IsJobInTerminalState(status) && !rc.Service.IsHaMetadataAvailable(ctx, rc.ObserveConfig()) {
		logger.Info("job is in terminal state, ready for upgrade from the latest savepoint",
			zap.String("jobState", string(status.JobStatus.State)))
		return v1beta1.UpgradeModeSavepoint, true, nil
	}

	if !reconciler.IsJobRunning(status) {
		// INITIALIZING, CREATED, FAILING, CANCELLING, RESTARTING, SUSPENDED,
		// RECONCILING, unknown states, and terminal states that still
		// have HA metadata all wait for the next observation.
		logger.Info("job is not in an upgradeable state, retrying later",
			zap.String("jobState", string(status.JobStatus.State)))
		return "", false, nil
	}

	changedToLastStateWithoutHa, err := reconciler.IsUpgradeModeChangedToLastStateAndHADisabledPreviously(resource, rc.ObserveConfig())
	if err != nil {
		return "", false, err
	}
	if changedToLastStateWithoutHa {
		logger.Info("using savepoint upgrade mode when switching to last-state without HA previously enabled")
		return v1beta1.UpgradeModeSavepoint, true, nil
	}
	deployed, err := reconciler.GetDeployedSpec(resource)
	if err != nil {
		return "", false, err
	}
	if reconciler.FlinkVersionChanged(deployed, &resource.Spec) {
		logger.Info("using savepoint upgrade mode when upgrading the Flink version",
			zap.String("from", string(deployed.FlinkVersion)),
			zap.String("to", string(resource.Spec.FlinkVersion)))
		return v1beta1.UpgradeModeSavepoint, true, nil
	}
	logger.Info("job is running, ready for upgrade", zap.String("upgradeMode", string(desired)))
	return desired, true, nil
}

// ReconcileSpecChange moves the job from its last reconciled state towards
// the desired one. A running job is always suspended first, the upgraded
// job is restored on the next pass. It returns false when the change has
// to wait.
func (r *JobReconciler) ReconcileSpecChange(ctx context.Context, rc *ResourceContext, deployConfig conf.Configuration) (bool, error) {
	resource := rc.Resource
	logger := r.passLogger(resource)
	lastJob, err := reconciler.LastReconciledJob(resource)
	if err != nil {
		return false, err
	}
	currentState := lastJob.StateOrDefault()
	desiredState := resource.Spec.Job.StateOrDefault()
	decided := resource.Spec.DeepCopy()

	if currentState == v1beta1.JobStateRunning {
		if desiredState == v1beta1.JobStateRunning {
			logger.Info("upgrading running job, suspending first")
		}
		mode, ok, err := r.AvailableUpgradeMode(ctx, rc)
		if err != nil || !ok {
			return false, err
		}
		// the restore on the next pass reads the mode back from the status
		decided.Job.UpgradeMode = mode

		r.recorder.TriggerEvent(resource, events.TypeNormal, events.ReasonSuspended,
			events.ComponentJobManagerDeployment, events.MsgSuspended)
		if err = r.strategy.CancelJob(ctx, rc, mode); err != nil {
			return false, err
		}
		metrics.SpecUpgradesTotal.WithLabelValues(string(mode)).Inc()
		if desiredState == v1beta1.JobStateRunning {
			err = reconciler.UpdateStatusBeforeDeploymentAttempt(resource, decided, r.clock)
		} else {
			err = reconciler.UpdateStatusForDeployedSpec(resource, decided, r.clock)
		}
		return err == nil, err
	}

	if desiredState == v1beta1.JobStateRunning {
		if decided.Job.UpgradeModeOrDefault() != v1beta1.UpgradeModeStateless {
			decided.Job.UpgradeMode = lastJob.UpgradeMode
		}
		if err = reconciler.UpdateStatusBeforeDeploymentAttempt(resource, decided, r.clock); err != nil {
			return false, err
		}
		if err = r.persister.PatchAndCacheStatus(ctx, resource); err != nil {
			return false, err
		}
		// HA metadata is only left behind by a last-state suspend
		requireHa := lastJob.UpgradeModeOrDefault() == v1beta1.UpgradeModeLastState
		if err = r.RestoreJob(ctx, rc, decided, deployConfig, requireHa); err != nil {
			return false, err
		}
		return true, reconciler.UpdateStatusForDeployedSpec(resource, decided, r.clock)
	}

	logger.Info("job stays suspended, recording new spec")
	return true, reconciler.UpdateStatusForDeployedSpec(resource, decided, r.clock)
}

// RestoreJob deploys spec, resuming from the last savepoint unless the
// spec is stateless.
func (r *JobReconciler) RestoreJob(ctx context.Context, rc *ResourceContext, spec *v1beta1.FlinkDeploymentSpec,
	deployConfig conf.Configuration, requireHaMetadata bool) error {
	var savepoint *string
	if spec.Job.UpgradeModeOrDefault() != v1beta1.UpgradeModeStateless {
		savepoint = rc.Resource.Status.JobStatus.SavepointInfo.LastSavepointLocation()
	}
	return r.Deploy(ctx, rc, spec, deployConfig, savepoint, requireHaMetadata)
}

// Deploy submits spec to the execution service. When requireHaMetadata is
// set and the HA metadata is missing the job is not started at all.
func (r *JobReconciler) Deploy(ctx context.Context, rc *ResourceContext, spec *v1beta1.FlinkDeploymentSpec,
	deployConfig conf.Configuration, savepoint *string, requireHaMetadata bool) error {
	resource := rc.Resource
	logger := r.passLogger(resource)
	if requireHaMetadata && !rc.Service.IsHaMetadataAvailable(ctx, deployConfig) {
		err := &RecoveryFailureError{
			Namespace: resource.Namespace,
			Name:      resource.Name,
			Reason:    "HA metadata not available to restore from last state",
		}
		r.recorder.TriggerEvent(resource, events.TypeWarning, events.ReasonRecoveryFailed,
			events.ComponentJobManagerDeployment, err.Error())
		return err
	}

	fields := []zap.Field{
		zap.String("upgradeMode", string(spec.Job.UpgradeModeOrDefault())),
		zap.Bool("requireHaMetadata", requireHaMetadata),
	}
	if savepoint != nil {
		fields = append(fields, zap.String("savepoint", *savepoint))
	}
	logger.Info("deploying job", fields...)
	r.recorder.TriggerEvent(resource, events.TypeNormal, events.ReasonSubmit,
		events.ComponentJobManagerDeployment, events.MsgSubmit)
	if err := rc.Service.Deploy(ctx, resource, spec, deployConfig, savepoint, requireHaMetadata); err != nil {
		return err
	}
	resource.Status.JobStatus.State = v1beta1.JobStatusReconciling
	return nil
}

// Rollback replaces the current deployment with the last stable spec,
// always resuming with last-state.
func (r *JobReconciler) Rollback(ctx context.Context, rc *ResourceContext) error {
	resource := rc.Resource
	rollbackSpec, err := resource.Status.ReconciliationStatus.DeserializeLastStableSpec()
	if err != nil {
		return err
	}
	if rollbackSpec == nil || rollbackSpec.Job == nil {
		return ErrNoStableSpec
	}
	rollbackSpec.Job.UpgradeMode = v1beta1.UpgradeModeLastState

	requested := resource.Spec.Job.UpgradeModeOrDefault()
	cancelMode := v1beta1.UpgradeModeLastState
	if requested == v1beta1.UpgradeModeStateless {
		cancelMode = v1beta1.UpgradeModeStateless
	}
	r.passLogger(resource).Warn("rolling back to the last stable spec", zap.String("cancelMode", string(cancelMode)))
	r.recorder.TriggerEvent(resource, events.TypeNormal, events.ReasonRollback,
		events.ComponentJobManagerDeployment, events.MsgRollback)

	if err = r.strategy.CancelJob(ctx, rc, cancelMode); err != nil {
		return err
	}
	if err = r.RestoreJob(ctx, rc, rollbackSpec, rc.DeployConfig(rollbackSpec), requested != v1beta1.UpgradeModeStateless); err != nil {
		return err
	}
	metrics.RollbacksTotal.Inc()
	return reconciler.TransitionState(resource, reconciler.CompleteRollback)
}

// ReconcileOtherChanges handles changes that do not come from the spec: a
// failed job is restarted when configured, otherwise savepoints are
// triggered when due.
func (r *JobReconciler) ReconcileOtherChanges(ctx context.Context, rc *ResourceContext) (bool, error) {
	status := &rc.Resource.Status
	if status.JobStatus.State == v1beta1.JobStatusFailed && rc.ObserveConfig().GetBool(conf.JobRestartFailed) {
		r.passLogger(rc.Resource).Info("stopping failed job")
		r.recorder.TriggerEvent(rc.Resource, events.TypeNormal, events.ReasonRestartFailedJob,
			events.ComponentJob, events.MsgRestartFailedJob)
		if err := r.strategy.CleanupAfterFailedJob(ctx, rc); err != nil {
			return false, err
		}
		status.Error = ""
		if err := r.ResubmitJob(ctx, rc, false); err != nil {
			return false, err
		}
		metrics.JobResubmissionsTotal.Inc()
		return true, nil
	}
	return r.savepoints.TriggerIfNeeded(ctx, rc.Service, rc.Resource, rc.ObserveConfig())
}

// ResubmitJob deploys the currently deployed spec again.
func (r *JobReconciler) ResubmitJob(ctx context.Context, rc *ResourceContext, requireHaMetadata bool) error {
	r.passLogger(rc.Resource).Info("resubmitting job")
	spec, err := reconciler.GetDeployedSpec(rc.Resource)
	if err != nil {
		return err
	}
	if spec == nil || spec.Job == nil {
		return fmt.Errorf("resource %s/%s has no deployed job to resubmit", rc.Resource.Namespace, rc.Resource.Name)
	}
	if requireHaMetadata {
		spec.Job.UpgradeMode = v1beta1.UpgradeModeLastState
	}
	return r.RestoreJob(ctx, rc, spec, rc.ObserveConfig(), requireHaMetadata)
}

// ShouldRollBack reports whether the last deployed spec failed to become
// stable in time and a rollback to the stable spec is possible.
func (r *JobReconciler) ShouldRollBack(ctx context.Context, rc *ResourceContext) (bool, error) {
	resource := rc.Resource
	status := &resource.Status.ReconciliationStatus
	if status.CurrentState() == v1beta1.ReconciliationRollingBack {
		return true, nil
	}
	config := rc.ObserveConfig()
	if !config.GetBool(conf.DeploymentRollbackEnabled) ||
		status.CurrentState() == v1beta1.ReconciliationRolledBack ||
		status.IsLastReconciledSpecStable() {
		return false, nil
	}
	stable, err := status.DeserializeLastStableSpec()
	if err != nil {
		return false, err
	}
	if stable == nil || stable.Job == nil || stable.Job.StateOrDefault() == v1beta1.JobStateSuspended {
		return false, nil
	}
	timeout := config.GetDuration(conf.DeploymentReadinessTimeout)
	deployedAt := time.UnixMilli(status.ReconciliationTimestamp)
	if !r.clock.Now().After(deployedAt.Add(timeout)) {
		return false, nil
	}
	if resource.Spec.Job.UpgradeModeOrDefault() == v1beta1.UpgradeModeStateless {
		return true, nil
	}
	if !rc.Service.IsHaMetadataAvailable(ctx, config) {
		r.passLogger(resource).Warn("rollback is not possible due to missing HA metadata")
		return false, nil
	}
	return true, nil
}

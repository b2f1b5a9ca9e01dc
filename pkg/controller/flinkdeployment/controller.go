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

package flinkdeployment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	crclient "sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/common/events"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/log"
	"github.com/apache/flink-k8s-operator/pkg/metrics"
	"github.com/apache/flink-k8s-operator/pkg/reconciler"
	"github.com/apache/flink-k8s-operator/pkg/reconciler/deployment"
	"github.com/apache/flink-k8s-operator/pkg/savepoint"
	"github.com/apache/flink-k8s-operator/pkg/service"
)

const ControllerName = "flinkdeployment"

// Reconciler runs one reconciliation pass per FlinkDeployment event. The
// controller-runtime work queue never runs two passes for the same
// resource at once.
type Reconciler struct {
	client         crclient.Client
	statusRecorder *reconciler.StatusRecorder
	jobReconciler  *deployment.JobReconciler
	service        service.JobExecutionService
	configManager  *conf.ConfigManager
	recorder       events.EventRecorder
	clock          clock.PassiveClock
}

func NewReconciler(c crclient.Client, svc service.JobExecutionService, recorder events.EventRecorder,
	configManager *conf.ConfigManager, clk clock.PassiveClock) *Reconciler {
	statusRecorder := reconciler.NewStatusRecorder(c)
	advisor := savepoint.NewAdvisor(recorder, clk)
	return &Reconciler{
		client:         c,
		statusRecorder: statusRecorder,
		jobReconciler:  deployment.NewJobReconciler(deployment.ApplicationStrategy{}, recorder, statusRecorder, advisor, clk),
		service:        svc,
		configManager:  configManager,
		recorder:       recorder,
		clock:          clk,
	}
}

func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		Named(ControllerName).
		For(&v1beta1.FlinkDeployment{}).
		Complete(r)
}

func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	start := time.Now()
	logger := log.Log(log.Controller).With(
		zap.String("namespace", req.Namespace),
		zap.String("name", req.Name))

	resource := &v1beta1.FlinkDeployment{}
	if err := r.client.Get(ctx, req.NamespacedName, resource); err != nil {
		if apierrors.IsNotFound(err) {
			logger.Debug("resource deleted, dropping cached status")
			r.statusRecorder.RemoveCachedStatus(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}
	r.statusRecorder.UpdateStatusFromCache(resource)

	rc := deployment.NewResourceContext(resource, r.service, r.configManager)
	result, err := r.reconcile(ctx, rc)
	if err != nil {
		resource.Status.Error = err.Error()
		result = metrics.ResultError
		if deployment.IsRecoveryFailure(err) {
			// already reported, a retry cannot bring the state back
			logger.Warn("job recovery failed, waiting for a spec change", zap.Error(err))
			err = nil
		} else {
			logger.Error("reconciliation failed", zap.Error(err))
			r.recorder.TriggerEvent(resource, events.TypeWarning, events.ReasonError, events.ComponentOperator, err.Error())
		}
	}
	if patchErr := r.statusRecorder.PatchAndCacheStatus(ctx, resource); patchErr != nil {
		err = errors.Join(err, patchErr)
		result = metrics.ResultError
	}
	metrics.ObserveReconcile(result, start)
	if err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: conf.GetOperatorConf().ReconcileInterval}, nil
}

func (r *Reconciler) reconcile(ctx context.Context, rc *deployment.ResourceContext) (string, error) {
	resource := rc.Resource
	logger := log.Log(log.Controller).With(
		zap.String("namespace", resource.Namespace),
		zap.String("name", resource.Name))
	if resource.Spec.Job == nil {
		return metrics.ResultError, fmt.Errorf("%s/%s has no job spec, only application deployments are supported",
			resource.Namespace, resource.Name)
	}
	status := &resource.Status.ReconciliationStatus
	if status.IsBeforeFirstDeployment() {
		return metrics.ResultSuccess, r.deployFirst(ctx, rc)
	}
	markStableIfRunning(resource)

	if !r.jobReconciler.ReadyToReconcile(rc) {
		return metrics.ResultDeferred, nil
	}

	specChanged, err := reconciler.IsSpecChanged(resource)
	if err != nil {
		return metrics.ResultError, err
	}
	if specChanged {
		if status.CurrentState() != v1beta1.ReconciliationUpgrading {
			diff, err := reconciler.SpecDiff(resource)
			if err != nil {
				return metrics.ResultError, err
			}
			logger.Info("detected spec change", zap.String("diff", diff))
			r.recorder.TriggerEvent(resource, events.TypeNormal, events.ReasonSpecChanged,
				events.ComponentJobManagerDeployment, events.MsgSpecChanged)
		}
		applied, err := r.jobReconciler.ReconcileSpecChange(ctx, rc, rc.DeployConfig(&resource.Spec))
		if err != nil {
			return metrics.ResultError, err
		}
		if !applied {
			logger.Info("spec change cannot be applied right now, retrying later")
			return metrics.ResultDeferred, nil
		}
		return metrics.ResultSuccess, nil
	}

	rollBack, err := r.jobReconciler.ShouldRollBack(ctx, rc)
	if err != nil {
		return metrics.ResultError, err
	}
	if rollBack {
		// the rolling back state is persisted before anything is touched
		if status.CurrentState() != v1beta1.ReconciliationRollingBack {
			logger.Warn(events.MsgRollbackStarted)
			if err = reconciler.TransitionState(resource, reconciler.RollBackSpec); err != nil {
				return metrics.ResultError, err
			}
			resource.Status.Error = events.MsgRollbackStarted
			r.recorder.TriggerEvent(resource, events.TypeWarning, events.ReasonRollback,
				events.ComponentJobManagerDeployment, events.MsgRollbackStarted)
			return metrics.ResultSuccess, nil
		}
		return metrics.ResultSuccess, r.jobReconciler.Rollback(ctx, rc)
	}

	handled, err := r.jobReconciler.ReconcileOtherChanges(ctx, rc)
	if err != nil {
		return metrics.ResultError, err
	}
	if !handled {
		logger.Debug("resource fully reconciled, nothing to do")
	}
	return metrics.ResultSuccess, nil
}

// deployFirst submits the job the first time. A suspended job is only
// recorded.
func (r *Reconciler) deployFirst(ctx context.Context, rc *deployment.ResourceContext) error {
	resource := rc.Resource
	spec := resource.Spec.DeepCopy()
	if spec.Job.StateOrDefault() == v1beta1.JobStateSuspended {
		return reconciler.UpdateStatusForDeployedSpec(resource, spec, r.clock)
	}
	if err := reconciler.UpdateStatusBeforeDeploymentAttempt(resource, spec, r.clock); err != nil {
		return err
	}
	if err := r.statusRecorder.PatchAndCacheStatus(ctx, resource); err != nil {
		return err
	}
	var initialSavepoint *string
	if path := spec.Job.InitialSavepointPath; path != "" {
		initialSavepoint = &path
	}
	if err := r.jobReconciler.Deploy(ctx, rc, spec, rc.DeployConfig(spec), initialSavepoint, false); err != nil {
		return err
	}
	return reconciler.UpdateStatusForDeployedSpec(resource, spec, r.clock)
}

// markStableIfRunning marks the deployed spec stable once its job runs.
func markStableIfRunning(resource *v1beta1.FlinkDeployment) {
	status := &resource.Status.ReconciliationStatus
	if status.IsLastReconciledSpecStable() || status.CurrentState() != v1beta1.ReconciliationDeployed ||
		!reconciler.IsJobRunning(&resource.Status) {
		return
	}
	status.MarkReconciledSpecAsStable()
	log.Log(log.Controller).Info("deployed spec is stable",
		zap.String("namespace", resource.Namespace),
		zap.String("name", resource.Name))
}

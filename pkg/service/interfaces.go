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

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/conf"
)

// JobExecutionService performs the actual job operations against the
// execution runtime.
type JobExecutionService interface {
	// Deploy starts the job described by spec. A nil savepoint starts the
	// job without restoring from a savepoint; with requireHaMetadata set the
	// job must resume from the HA metadata of the previous run.
	Deploy(ctx context.Context, resource *v1beta1.FlinkDeployment, spec *v1beta1.FlinkDeploymentSpec,
		config conf.Configuration, savepoint *string, requireHaMetadata bool) error

	// CancelJob stops the running job. With the savepoint upgrade mode the
	// location of the final savepoint is recorded in the resource status.
	CancelJob(ctx context.Context, resource *v1beta1.FlinkDeployment, mode v1beta1.UpgradeMode, config conf.Configuration) error

	// IsHaMetadataAvailable reports whether HA metadata of the previous
	// run exists for the cluster described by config.
	IsHaMetadataAvailable(ctx context.Context, config conf.Configuration) bool

	// TriggerSavepoint starts an asynchronous savepoint and records the
	// trigger in the resource status.
	TriggerSavepoint(ctx context.Context, resource *v1beta1.FlinkDeployment, triggerType v1beta1.SavepointTriggerType,
		config conf.Configuration) error

	// DeleteClusterDeployment removes the cluster of a stopped job.
	DeleteClusterDeployment(ctx context.Context, meta metav1.ObjectMeta, status *v1beta1.FlinkDeploymentStatus,
		deleteHaData bool) error
}

// HaMetadataChecker is the part of the service that inspects HA metadata.
type HaMetadataChecker interface {
	IsHaMetadataAvailable(ctx context.Context, config conf.Configuration) bool
}

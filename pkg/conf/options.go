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

package conf

import "time"

const (
	OperatorPrefix = "kubernetes.operator."

	// FlinkConfFile is the ConfigMap key holding a YAML formatted Flink config.
	FlinkConfFile = "flink-conf.yaml"
)

// operator settings, all of them can be overridden per resource
var (
	JobUpgradeIgnorePendingSavepoint = BoolOption{Key: OperatorPrefix + "job.upgrade.ignore-pending-savepoint", Default: false}
	JobRestartFailed                 = BoolOption{Key: OperatorPrefix + "job.restart.failed", Default: false}
	PeriodicSavepointInterval        = DurationOption{Key: OperatorPrefix + "periodic.savepoint.interval", Default: 0}
	DeploymentRollbackEnabled        = BoolOption{Key: OperatorPrefix + "deployment.rollback.enabled", Default: false}
	DeploymentReadinessTimeout       = DurationOption{Key: OperatorPrefix + "deployment.readiness.timeout", Default: time.Minute}
	SavepointTimeout                 = DurationOption{Key: OperatorPrefix + "savepoint.timeout", Default: 10 * time.Minute}
)

// operator process settings
var (
	ReconcileInterval = DurationOption{Key: OperatorPrefix + "reconcile.interval", Default: time.Minute}
	WatchedNamespace  = StringOption{Key: OperatorPrefix + "watched.namespace", Default: ""}
	KubeQPS           = IntOption{Key: OperatorPrefix + "kube.qps", Default: 50}
	KubeBurst         = IntOption{Key: OperatorPrefix + "kube.burst", Default: 100}
)

// Flink settings read or derived by the operator
var (
	HighAvailabilityType       = StringOption{Key: "high-availability.type", Default: ""}
	HighAvailabilityLegacy     = StringOption{Key: "high-availability", Default: ""}
	HighAvailabilityStorageDir = StringOption{Key: "high-availability.storageDir", Default: ""}
	KubernetesClusterID        = StringOption{Key: "kubernetes.cluster-id", Default: ""}
	KubernetesNamespace        = StringOption{Key: "kubernetes.namespace", Default: ""}
	KubernetesContainerImage   = StringOption{Key: "kubernetes.container.image", Default: ""}
	KubernetesServiceAccount   = StringOption{Key: "kubernetes.service-account", Default: ""}
	ParallelismDefault         = IntOption{Key: "parallelism.default", Default: 1}
	PipelineJars               = StringOption{Key: "pipeline.jars", Default: ""}
	PipelineJobID              = StringOption{Key: "$internal.pipeline.job-id", Default: ""}
	SavepointDirectory         = StringOption{Key: "state.savepoints.dir", Default: ""}
	SavepointRestorePath       = StringOption{Key: "execution.savepoint.path", Default: ""}
	SavepointIgnoreUnclaimed   = BoolOption{Key: "execution.savepoint.ignore-unclaimed-state", Default: false}
	RestAddress                = StringOption{Key: "rest.address", Default: ""}
	RestPort                   = IntOption{Key: "rest.port", Default: 8081}
	TaskManagerSlots           = IntOption{Key: "taskmanager.numberOfTaskSlots", Default: 1}
)

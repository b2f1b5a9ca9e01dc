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
	"testing"

	"gotest.tools/v3/assert"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/service"
)

var _ CancelStrategy = ApplicationStrategy{}

func TestObserveConfig(t *testing.T) {
	tc := newTestContext()
	tc.configs = conf.NewStaticConfigManager(conf.Configuration{"state.backend": "rocksdb"})
	resource := newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeSavepoint)
	resource.Spec.FlinkConfiguration["taskmanager.numberOfTaskSlots"] = "2"

	// nothing deployed yet
	observed := tc.context(resource).ObserveConfig()
	assert.Equal(t, observed["state.backend"], "rocksdb")
	assert.Assert(t, !observed.Contains("taskmanager.numberOfTaskSlots"))

	tc.deployed(t, resource, v1beta1.JobStatusRunning)
	resource.Spec.FlinkConfiguration["taskmanager.numberOfTaskSlots"] = "4"
	rc := tc.context(resource)
	observed = rc.ObserveConfig()
	assert.Equal(t, observed["taskmanager.numberOfTaskSlots"], "2", "observed with the deployed spec")
	assert.Equal(t, observed[conf.KubernetesClusterID.Key], "state-machine")
	assert.Equal(t, rc.DeployConfig(&resource.Spec)["taskmanager.numberOfTaskSlots"], "4")
}

func TestApplicationStrategy(t *testing.T) {
	tc := newTestContext()
	resource := tc.deployed(t, newResource(v1beta1.JobStateRunning, v1beta1.UpgradeModeLastState), v1beta1.JobStatusFailed)
	rc := tc.context(resource)
	strategy := ApplicationStrategy{}

	assert.NilError(t, strategy.CancelJob(context.Background(), rc, v1beta1.UpgradeModeLastState))
	assert.NilError(t, strategy.CleanupAfterFailedJob(context.Background(), rc))
	assert.DeepEqual(t, tc.svc.CallTypes(), []service.CallType{service.CallCancel, service.CallDeleteCluster})
	calls := tc.svc.Calls()
	assert.Equal(t, calls[0].UpgradeMode, v1beta1.UpgradeModeLastState)
	assert.Equal(t, calls[0].Config[conf.KubernetesNamespace.Key], "flink")
	assert.Assert(t, !calls[1].DeleteHaData)
}

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
	"go.uber.org/zap"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/log"
	"github.com/apache/flink-k8s-operator/pkg/reconciler"
	"github.com/apache/flink-k8s-operator/pkg/service"
)

// ResourceContext carries one resource through a reconciliation pass
// together with the service that runs its job.
type ResourceContext struct {
	Resource *v1beta1.FlinkDeployment
	Service  service.JobExecutionService

	configManager *conf.ConfigManager
	observeConfig conf.Configuration
}

func NewResourceContext(resource *v1beta1.FlinkDeployment, svc service.JobExecutionService, configManager *conf.ConfigManager) *ResourceContext {
	return &ResourceContext{
		Resource:      resource,
		Service:       svc,
		configManager: configManager,
	}
}

// ObserveConfig returns the configuration of the currently deployed spec.
// Before the first deployment the operator defaults are returned.
func (rc *ResourceContext) ObserveConfig() conf.Configuration {
	if rc.observeConfig != nil {
		return rc.observeConfig
	}
	deployed, err := reconciler.GetDeployedSpec(rc.Resource)
	switch {
	case err != nil:
		log.Log(log.JobReconciler).Warn("cannot read deployed spec, observing with the desired spec",
			zap.String("namespace", rc.Resource.Namespace),
			zap.String("name", rc.Resource.Name),
			zap.Error(err))
		rc.observeConfig = rc.DeployConfig(&rc.Resource.Spec)
	case deployed == nil:
		rc.observeConfig = rc.configManager.DefaultConfig()
	default:
		rc.observeConfig = rc.DeployConfig(deployed)
	}
	return rc.observeConfig
}

// DeployConfig returns the configuration spec is deployed with.
func (rc *ResourceContext) DeployConfig(spec *v1beta1.FlinkDeploymentSpec) conf.Configuration {
	return rc.configManager.DeployConfig(rc.Resource.ObjectMeta, spec)
}

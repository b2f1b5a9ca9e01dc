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

import (
	"strconv"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
)

// ConfigManager builds the effective configuration of a resource from the
// operator defaults and the resource spec.
type ConfigManager struct {
	defaults func() Configuration
}

// NewConfigManager returns a manager backed by the live operator config.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		defaults: func() Configuration {
			return GetOperatorConf().Defaults
		},
	}
}

// NewStaticConfigManager returns a manager with fixed defaults.
func NewStaticConfigManager(defaults Configuration) *ConfigManager {
	fixed := defaults.Clone()
	return &ConfigManager{
		defaults: func() Configuration {
			return fixed
		},
	}
}

func (m *ConfigManager) DefaultConfig() Configuration {
	return m.defaults().Clone()
}

// DeployConfig returns the configuration a spec is deployed with. The
// spec's flinkConfiguration overrides the defaults, keys derived from the
// resource itself override both.
func (m *ConfigManager) DeployConfig(meta metav1.ObjectMeta, spec *v1beta1.FlinkDeploymentSpec) Configuration {
	config := m.defaults().Merge(spec.FlinkConfiguration)
	config[KubernetesClusterID.Key] = meta.Name
	config[KubernetesNamespace.Key] = meta.Namespace
	if spec.Image != "" {
		config[KubernetesContainerImage.Key] = spec.Image
	}
	if spec.ServiceAccount != "" {
		config[KubernetesServiceAccount.Key] = spec.ServiceAccount
	}
	if job := spec.Job; job != nil {
		if job.JarURI != "" {
			config[PipelineJars.Key] = job.JarURI
		}
		if job.Parallelism > 0 {
			config[ParallelismDefault.Key] = strconv.Itoa(int(job.Parallelism))
		}
	}
	return config
}

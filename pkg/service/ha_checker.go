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
	"strings"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"

	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/log"
)

const (
	LabelApp           = "app"
	LabelConfigMapType = "configmap-type"
	ConfigMapTypeHA    = "high-availability"

	haModeKubernetes = "kubernetes"
	haFactoryClass   = "org.apache.flink.kubernetes.highavailability.KubernetesHaServicesFactory"
)

// KubernetesHaChecker looks up the HA ConfigMaps written by the Kubernetes
// HA services of a job cluster.
type KubernetesHaChecker struct {
	clientSet kubernetes.Interface
}

func NewKubernetesHaChecker(clientSet kubernetes.Interface) *KubernetesHaChecker {
	return &KubernetesHaChecker{clientSet: clientSet}
}

// IsHaMetadataAvailable is true when HA is enabled and at least one HA
// ConfigMap with content exists for the cluster. Lookup failures count as
// unavailable.
func (c *KubernetesHaChecker) IsHaMetadataAvailable(ctx context.Context, config conf.Configuration) bool {
	logger := log.Log(log.Service)
	if !conf.IsHighAvailabilityEnabled(config) {
		return false
	}
	mode := config.GetString(conf.HighAvailabilityType)
	if mode == "" {
		mode = config.GetString(conf.HighAvailabilityLegacy)
	}
	if !strings.EqualFold(mode, haModeKubernetes) && mode != haFactoryClass {
		logger.Warn("HA metadata lookup is only supported for kubernetes HA", zap.String("mode", mode))
		return false
	}

	namespace := config.GetString(conf.KubernetesNamespace)
	clusterID := config.GetString(conf.KubernetesClusterID)
	selector := labels.SelectorFromSet(labels.Set{
		LabelApp:           clusterID,
		LabelConfigMapType: ConfigMapTypeHA,
	})
	configMaps, err := c.clientSet.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		logger.Warn("failed to list HA configmaps",
			zap.String("namespace", namespace),
			zap.String("clusterID", clusterID),
			zap.Error(err))
		return false
	}
	for _, cm := range configMaps.Items {
		if len(cm.Data) > 0 {
			return true
		}
	}
	return false
}

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

package operator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/apache/flink-k8s-operator/pkg/client"
	"github.com/apache/flink-k8s-operator/pkg/common/events"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/controller/flinkdeployment"
	"github.com/apache/flink-k8s-operator/pkg/log"
	"github.com/apache/flink-k8s-operator/pkg/metrics"
	"github.com/apache/flink-k8s-operator/pkg/service"
)

const (
	DefaultConfigMapName  = "flink-operator-config"
	OverrideConfigMapName = "flink-operator-config-override"
)

// Operator owns the controller manager and the FlinkDeployment controller.
type Operator struct {
	manager ctrl.Manager
}

// LoadConfig applies the operator ConfigMaps found in namespace. Missing
// maps are skipped, the defaults apply for everything they would set.
func LoadConfig(ctx context.Context, kc client.KubeClient, namespace string) error {
	configMaps, err := kc.GetConfigMaps(ctx, namespace, DefaultConfigMapName, OverrideConfigMapName)
	if err != nil {
		return fmt.Errorf("unable to load operator config maps: %w", err)
	}
	log.Log(log.Operator).Info("loaded operator config maps",
		zap.String("namespace", namespace),
		zap.Int("count", len(configMaps)))
	return conf.UpdateConfigMaps(configMaps, true)
}

// ManagerOptions limits the cache to the watched namespace when one is set.
func ManagerOptions(scheme *runtime.Scheme, opConf *conf.OperatorConf) ctrl.Options {
	options := ctrl.Options{Scheme: scheme}
	if ns := opConf.WatchedNamespace; ns != "" {
		options.Cache = cache.Options{
			DefaultNamespaces: map[string]cache.Config{ns: {}},
		}
	}
	return options
}

func NewOperator(kc client.KubeClient, svc service.JobExecutionService) (*Operator, error) {
	mgr, err := ctrl.NewManager(kc.GetConfigs(), ManagerOptions(kc.GetScheme(), conf.GetOperatorConf()))
	if err != nil {
		return nil, fmt.Errorf("unable to create controller manager: %w", err)
	}
	if err = metrics.Register(ctrlmetrics.Registry); err != nil {
		return nil, err
	}
	recorder := events.NewEventRecorder(mgr.GetEventRecorderFor(flinkdeployment.ControllerName))
	r := flinkdeployment.NewReconciler(mgr.GetClient(), svc, recorder, conf.NewConfigManager(), clock.RealClock{})
	if err = r.SetupWithManager(mgr); err != nil {
		return nil, fmt.Errorf("unable to set up %s controller: %w", flinkdeployment.ControllerName, err)
	}
	return &Operator{manager: mgr}, nil
}

// Run blocks until ctx is cancelled or the manager fails.
func (o *Operator) Run(ctx context.Context) error {
	log.Log(log.Operator).Info("starting operator",
		zap.String("watchedNamespace", conf.GetOperatorConf().WatchedNamespace))
	if err := o.manager.Start(ctx); err != nil {
		return fmt.Errorf("operator stopped: %w", err)
	}
	log.Log(log.Operator).Info("operator stopped")
	return nil
}

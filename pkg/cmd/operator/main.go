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

package main

import (
	"go.uber.org/zap"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/apache/flink-k8s-operator/pkg/client"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/log"
	"github.com/apache/flink-k8s-operator/pkg/operator"
	"github.com/apache/flink-k8s-operator/pkg/service"
)

var (
	version string
	date    string
)

func main() {
	log.Log(log.Operator).Info("Build info", zap.String("version", version), zap.String("date", date))

	ctx := ctrl.SetupSignalHandler()
	kubeConfig := client.DefaultKubeConfigPath()
	bootstrapClient, err := client.NewKubeClient(kubeConfig)
	if err != nil {
		log.Log(log.Operator).Fatal("Unable to create bootstrap client", zap.Error(err))
	}

	namespace := conf.GetOperatorNamespace()
	if err = operator.LoadConfig(ctx, bootstrapClient, namespace); err != nil {
		log.Log(log.Operator).Fatal("Unable to load initial configmaps", zap.Error(err))
	}

	// the loaded config carries the client rate limits
	kc, err := client.NewKubeClient(kubeConfig)
	if err != nil {
		log.Log(log.Operator).Fatal("Unable to create kubernetes client", zap.Error(err))
	}
	svc := service.NewStandaloneService(kc.GetClientSet(), clock.RealClock{})
	op, err := operator.NewOperator(kc, svc)
	if err != nil {
		log.Log(log.Operator).Fatal("Unable to create operator", zap.Error(err))
	}
	if err = op.Run(ctx); err != nil {
		log.Log(log.Operator).Fatal("Operator failed", zap.Error(err))
	}
	log.Log(log.Operator).Info("Shutdown signal received, exiting...")
}

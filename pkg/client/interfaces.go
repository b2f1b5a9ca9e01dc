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

package client

import (
	"context"

	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	crclient "sigs.k8s.io/controller-runtime/pkg/client"
)

type KubeClient interface {
	// typed client for the core API, used for events and HA metadata lookups
	GetClientSet() kubernetes.Interface

	// client for the FlinkDeployment resources and their status
	GetClient() crclient.Client

	GetScheme() *runtime.Scheme

	// nil for fake clients
	GetConfigs() *rest.Config

	// GetConfigMaps returns the named config maps that exist in namespace,
	// missing ones are skipped.
	GetConfigMaps(ctx context.Context, namespace string, names ...string) ([]*v1.ConfigMap, error)
}

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
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	crclient "sigs.k8s.io/controller-runtime/pkg/client"
	crfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
)

// NewFakeKubeClient returns a client backed by in memory stores. Core
// objects go to the clientset, FlinkDeployments to the resource client.
func NewFakeKubeClient(objects ...runtime.Object) *OperatorKubeClient {
	scheme := NewScheme()
	var core []runtime.Object
	var resources []crclient.Object
	for _, obj := range objects {
		if deployment, ok := obj.(*v1beta1.FlinkDeployment); ok {
			resources = append(resources, deployment)
			continue
		}
		core = append(core, obj)
	}
	return &OperatorKubeClient{
		clientSet: fake.NewSimpleClientset(core...),
		client: crfake.NewClientBuilder().
			WithScheme(scheme).
			WithStatusSubresource(&v1beta1.FlinkDeployment{}).
			WithObjects(resources...).
			Build(),
		scheme: scheme,
	}
}

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

// Package v1beta1 contains the API schema of the flink.apache.org/v1beta1
// group.
//
// A FlinkDeployment describes a long-running streaming job together with the
// way it is upgraded:
//
//	apiVersion: flink.apache.org/v1beta1
//	kind: FlinkDeployment
//	metadata:
//	  name: word-count
//	  namespace: streaming
//	spec:
//	  image: flink:1.18
//	  flinkVersion: v1_18
//	  flinkConfiguration:
//	    high-availability.type: kubernetes
//	  job:
//	    jarURI: local:///opt/flink/examples/streaming/WordCount.jar
//	    parallelism: 2
//	    state: running
//	    upgradeMode: last-state
//
// The status records the last reconciled and last stable spec as JSON
// snapshots so that an interrupted upgrade can always be resumed or rolled
// back from persisted state.
//
// +kubebuilder:object:generate=true
// +groupName=flink.apache.org
package v1beta1

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

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
)

// CancelStrategy stops jobs the way the deployment target requires.
type CancelStrategy interface {
	// CancelJob stops the current job using the given upgrade mode.
	CancelJob(ctx context.Context, rc *ResourceContext, mode v1beta1.UpgradeMode) error
	// CleanupAfterFailedJob removes what is left of a failed job.
	CleanupAfterFailedJob(ctx context.Context, rc *ResourceContext) error
}

// ApplicationStrategy handles application clusters: every job owns its
// cluster, a failed job takes the cluster with it.
type ApplicationStrategy struct{}

func (ApplicationStrategy) CancelJob(ctx context.Context, rc *ResourceContext, mode v1beta1.UpgradeMode) error {
	return rc.Service.CancelJob(ctx, rc.Resource, mode, rc.ObserveConfig())
}

// CleanupAfterFailedJob keeps the HA data so the job can resume from it.
func (ApplicationStrategy) CleanupAfterFailedJob(ctx context.Context, rc *ResourceContext) error {
	return rc.Service.DeleteClusterDeployment(ctx, rc.Resource.ObjectMeta, &rc.Resource.Status, false)
}

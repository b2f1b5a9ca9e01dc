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

package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/locking"
	"github.com/apache/flink-k8s-operator/pkg/log"
)

// StatusPersister durably writes the status of a resource.
type StatusPersister interface {
	PatchAndCacheStatus(ctx context.Context, resource *v1beta1.FlinkDeployment) error
}

// StatusRecorder patches the status subresource. For every resource it
// remembers the status last read from the server, which is the base of the
// next patch, and the status last written by the operator. The informer
// cache can lag behind our own writes, the written status is put back on
// freshly read resources that predate it.
type StatusRecorder struct {
	client client.Client
	cache  map[types.NamespacedName]*statusEntry
	lock   locking.RWMutex
}

type statusEntry struct {
	// server side status the next patch is computed against
	observed *v1beta1.FlinkDeploymentStatus
	// last status written by the operator
	written *v1beta1.FlinkDeploymentStatus
}

func NewStatusRecorder(c client.Client) *StatusRecorder {
	return &StatusRecorder{
		client: c,
		cache:  make(map[types.NamespacedName]*statusEntry),
	}
}

// PatchAndCacheStatus writes the status when it differs from what the
// server holds. Fields changed on the server by someone else since the read
// are overwritten only when the operator changed them too.
func (r *StatusRecorder) PatchAndCacheStatus(ctx context.Context, resource *v1beta1.FlinkDeployment) error {
	key := client.ObjectKeyFromObject(resource)
	base := resource.DeepCopy()
	base.Status = v1beta1.FlinkDeploymentStatus{}
	r.lock.RLock()
	if entry, ok := r.cache[key]; ok && entry.observed != nil {
		base.Status = *entry.observed.DeepCopy()
	}
	r.lock.RUnlock()
	if equality.Semantic.DeepEqual(&base.Status, &resource.Status) {
		log.Log(log.Status).Debug("status unchanged, skipping patch", zap.Stringer("resource", key))
		return nil
	}

	status := resource.Status.DeepCopy()
	if err := r.client.Status().Patch(ctx, resource, client.MergeFrom(base)); err != nil {
		return fmt.Errorf("failed to patch status of %s: %w", key, err)
	}
	// the patch response replaces the object, keep what we wrote
	resource.Status = *status

	r.lock.Lock()
	r.cache[key] = &statusEntry{observed: status.DeepCopy(), written: status.DeepCopy()}
	r.lock.Unlock()
	log.Log(log.Status).Debug("status patched",
		zap.Stringer("resource", key),
		zap.String("reconciliationState", string(status.ReconciliationStatus.State)),
		zap.String("jobState", string(status.JobStatus.State)))
	return nil
}

// UpdateStatusFromCache must be called on every freshly read resource. It
// records the read status as the base of the next patch and replaces it
// with the last written one when the read predates our last reconciliation.
func (r *StatusRecorder) UpdateStatusFromCache(resource *v1beta1.FlinkDeployment) {
	key := client.ObjectKeyFromObject(resource)
	r.lock.Lock()
	defer r.lock.Unlock()
	entry, ok := r.cache[key]
	if !ok {
		entry = &statusEntry{}
		r.cache[key] = entry
	}
	entry.observed = resource.Status.DeepCopy()
	if entry.written == nil {
		return
	}
	if resource.Status.ReconciliationStatus.ReconciliationTimestamp < entry.written.ReconciliationStatus.ReconciliationTimestamp {
		log.Log(log.Status).Debug("stale status read, using cached status",
			zap.String("namespace", resource.Namespace),
			zap.String("name", resource.Name))
		resource.Status = *entry.written.DeepCopy()
	}
}

func (r *StatusRecorder) RemoveCachedStatus(key types.NamespacedName) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.cache, key)
}

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

package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/apache/flink-k8s-operator/pkg/log"
)

const (
	Namespace = "flink_operator"

	ResultSuccess  = "success"
	ResultDeferred = "deferred"
	ResultError    = "error"
)

var (
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconcile_total",
			Help:      "Total number of reconciliation passes by result",
		},
		[]string{"result"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of a reconciliation pass in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	SpecUpgradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "spec_upgrades_total",
			Help:      "Total number of running jobs suspended for a spec change by upgrade mode",
		},
		[]string{"upgrade_mode"},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rollbacks_total",
			Help:      "Total number of rollbacks to the last stable spec",
		},
	)

	JobResubmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "job_resubmissions_total",
			Help:      "Total number of failed jobs resubmitted",
		},
	)

	SavepointsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "savepoints_triggered_total",
			Help:      "Total number of savepoints triggered by trigger type",
		},
		[]string{"trigger_type"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ReconcileTotal,
		ReconcileDuration,
		SpecUpgradesTotal,
		RollbacksTotal,
		JobResubmissionsTotal,
		SavepointsTriggeredTotal,
	}
}

// Register adds all operator metrics to reg. Metrics that are already
// registered are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			log.Log(log.Metrics).Error("failed to register metric", zap.Error(err))
			return err
		}
	}
	return nil
}

// ObserveReconcile records the outcome and duration of one pass.
func ObserveReconcile(result string, start time.Time) {
	ReconcileTotal.WithLabelValues(result).Inc()
	ReconcileDuration.Observe(time.Since(start).Seconds())
}

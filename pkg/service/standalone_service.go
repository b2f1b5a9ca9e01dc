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
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	appsv1 "k8s.io/api/apps/v1"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/log"
)

const (
	LabelComponent       = "component"
	ComponentJobManager  = "jobmanager"
	ComponentTaskManager = "taskmanager"

	mainContainerName = "flink-main-container"
	flinkConfVolume   = "flink-config-volume"
	flinkConfDir      = "/opt/flink/conf"
	restPortName      = "rest"
)

// StandaloneService runs every job as a Flink standalone application
// cluster: a JobManager Deployment, a TaskManager Deployment, a REST Service
// and a ConfigMap with the Flink configuration. Job operations go through
// the Flink REST API, HA metadata is looked up in the HA ConfigMaps.
type StandaloneService struct {
	clientSet kubernetes.Interface
	rest      *RestClient
	ha        HaMetadataChecker
	clock     clock.PassiveClock
}

func NewStandaloneService(clientSet kubernetes.Interface, clk clock.PassiveClock) *StandaloneService {
	return &StandaloneService{
		clientSet: clientSet,
		rest:      NewRestClient(),
		ha:        NewKubernetesHaChecker(clientSet),
		clock:     clk,
	}
}

func (s *StandaloneService) IsHaMetadataAvailable(ctx context.Context, config conf.Configuration) bool {
	return s.ha.IsHaMetadataAvailable(ctx, config)
}

// Deploy creates or updates the cluster resources. A restore from HA
// metadata keeps the job id of the previous run, any other deployment
// starts a job with a new id.
func (s *StandaloneService) Deploy(ctx context.Context, resource *v1beta1.FlinkDeployment, spec *v1beta1.FlinkDeploymentSpec,
	config conf.Configuration, savepoint *string, requireHaMetadata bool) error {
	if spec.Job == nil {
		return fmt.Errorf("%s/%s has no job, only application clusters are supported", resource.Namespace, resource.Name)
	}
	if conf.IsHighAvailabilityEnabled(config) && config.GetString(conf.HighAvailabilityStorageDir) == "" {
		return fmt.Errorf("%s must be set when high availability is enabled", conf.HighAvailabilityStorageDir.Key)
	}

	config = config.Clone()
	jobID := resource.Status.JobStatus.JobID
	if !requireHaMetadata || jobID == "" {
		jobID = newJobID()
	}
	config[conf.PipelineJobID.Key] = jobID
	delete(config, conf.SavepointRestorePath.Key)
	if savepoint != nil {
		config[conf.SavepointRestorePath.Key] = *savepoint
	}
	if allow := spec.Job.AllowNonRestoredState; allow != nil && *allow {
		config[conf.SavepointIgnoreUnclaimed.Key] = "true"
	}

	meta := resource.ObjectMeta
	configMap, err := flinkConfigMap(meta, config)
	if err != nil {
		return err
	}
	if err = s.applyConfigMap(ctx, configMap); err != nil {
		return err
	}
	if err = s.applyDeployment(ctx, jobManagerDeployment(meta, spec, jobID)); err != nil {
		return err
	}
	if err = s.applyDeployment(ctx, taskManagerDeployment(meta, spec, config)); err != nil {
		return err
	}
	if err = s.applyService(ctx, restService(meta, config)); err != nil {
		return err
	}
	resource.Status.JobStatus.JobID = jobID
	log.Log(log.Service).Info("standalone application cluster deployed",
		zap.String("namespace", meta.Namespace),
		zap.String("name", meta.Name),
		zap.String("jobID", jobID),
		zap.Bool("fromSavepoint", savepoint != nil),
		zap.Bool("requireHaMetadata", requireHaMetadata))
	return nil
}

// CancelJob stops the job the way the upgrade mode asks for and removes
// the cluster. Only LAST_STATE keeps the HA metadata.
func (s *StandaloneService) CancelJob(ctx context.Context, resource *v1beta1.FlinkDeployment, mode v1beta1.UpgradeMode,
	config conf.Configuration) error {
	logger := log.Log(log.Service).With(
		zap.String("namespace", resource.Namespace),
		zap.String("name", resource.Name),
		zap.String("upgradeMode", string(mode)))
	jobStatus := &resource.Status.JobStatus
	baseURL := restURL(config)

	switch mode {
	case v1beta1.UpgradeModeSavepoint:
		if !jobStatus.State.IsGloballyTerminal() {
			triggerID, err := s.rest.StopWithSavepoint(ctx, baseURL, jobStatus.JobID, config.GetString(conf.SavepointDirectory))
			if err != nil {
				return err
			}
			location, err := s.rest.WaitForSavepoint(ctx, baseURL, jobStatus.JobID, triggerID, config.GetDuration(conf.SavepointTimeout))
			if err != nil {
				return err
			}
			jobStatus.SavepointInfo.UpdateLastSavepoint(v1beta1.Savepoint{
				TimeStamp:   s.clock.Now().UnixMilli(),
				Location:    location,
				TriggerType: v1beta1.SavepointTriggerUpgrade,
			})
			jobStatus.State = v1beta1.JobStatusFinished
			logger.Info("job stopped with savepoint", zap.String("location", location))
		}
		if err := s.deleteCluster(ctx, resource.ObjectMeta, true); err != nil {
			return err
		}
	case v1beta1.UpgradeModeLastState:
		if err := s.deleteCluster(ctx, resource.ObjectMeta, false); err != nil {
			return err
		}
		jobStatus.State = v1beta1.JobStatusSuspended
	default:
		// removing the cluster stops the job anyway
		if err := s.rest.CancelJob(ctx, baseURL, jobStatus.JobID); err != nil {
			logger.Warn("job cancellation failed, deleting the cluster", zap.Error(err))
		}
		if err := s.deleteCluster(ctx, resource.ObjectMeta, true); err != nil {
			return err
		}
		jobStatus.State = v1beta1.JobStatusCanceled
	}
	logger.Info("job cancelled")
	return nil
}

func (s *StandaloneService) TriggerSavepoint(ctx context.Context, resource *v1beta1.FlinkDeployment,
	triggerType v1beta1.SavepointTriggerType, config conf.Configuration) error {
	jobStatus := &resource.Status.JobStatus
	triggerID, err := s.rest.TriggerSavepoint(ctx, restURL(config), jobStatus.JobID, config.GetString(conf.SavepointDirectory))
	if err != nil {
		return err
	}
	jobStatus.SavepointInfo.SetTrigger(triggerID, triggerType, s.clock.Now().UnixMilli())
	return nil
}

func (s *StandaloneService) DeleteClusterDeployment(ctx context.Context, meta metav1.ObjectMeta, status *v1beta1.FlinkDeploymentStatus,
	deleteHaData bool) error {
	if err := s.deleteCluster(ctx, meta, deleteHaData); err != nil {
		return err
	}
	status.JobStatus.State = ""
	return nil
}

func (s *StandaloneService) deleteCluster(ctx context.Context, meta metav1.ObjectMeta, deleteHaData bool) error {
	propagation := metav1.DeletePropagationForeground
	options := metav1.DeleteOptions{PropagationPolicy: &propagation}
	deployments := s.clientSet.AppsV1().Deployments(meta.Namespace)
	for _, name := range []string{meta.Name, taskManagerName(meta.Name)} {
		if err := ignoreNotFound(deployments.Delete(ctx, name, options)); err != nil {
			return fmt.Errorf("failed to delete deployment %s/%s: %w", meta.Namespace, name, err)
		}
	}
	if err := ignoreNotFound(s.clientSet.CoreV1().Services(meta.Namespace).Delete(ctx, restServiceName(meta.Name), options)); err != nil {
		return fmt.Errorf("failed to delete rest service of %s/%s: %w", meta.Namespace, meta.Name, err)
	}
	configMaps := s.clientSet.CoreV1().ConfigMaps(meta.Namespace)
	if err := ignoreNotFound(configMaps.Delete(ctx, configMapName(meta.Name), options)); err != nil {
		return fmt.Errorf("failed to delete flink config of %s/%s: %w", meta.Namespace, meta.Name, err)
	}
	if deleteHaData {
		selector := labels.SelectorFromSet(labels.Set{
			LabelApp:           meta.Name,
			LabelConfigMapType: ConfigMapTypeHA,
		})
		haConfigMaps, err := configMaps.List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
		if err != nil {
			return fmt.Errorf("failed to list HA configmaps of %s/%s: %w", meta.Namespace, meta.Name, err)
		}
		for _, cm := range haConfigMaps.Items {
			if err = ignoreNotFound(configMaps.Delete(ctx, cm.Name, metav1.DeleteOptions{})); err != nil {
				return fmt.Errorf("failed to delete HA configmap %s/%s: %w", meta.Namespace, cm.Name, err)
			}
		}
	}
	log.Log(log.Service).Info("cluster deleted",
		zap.String("namespace", meta.Namespace),
		zap.String("name", meta.Name),
		zap.Bool("deleteHaData", deleteHaData))
	return nil
}

func (s *StandaloneService) applyConfigMap(ctx context.Context, desired *v1.ConfigMap) error {
	configMaps := s.clientSet.CoreV1().ConfigMaps(desired.Namespace)
	existing, err := configMaps.Get(ctx, desired.Name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		_, err = configMaps.Create(ctx, desired, metav1.CreateOptions{})
	case err == nil:
		desired.ResourceVersion = existing.ResourceVersion
		_, err = configMaps.Update(ctx, desired, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to apply configmap %s/%s: %w", desired.Namespace, desired.Name, err)
	}
	return nil
}

func (s *StandaloneService) applyDeployment(ctx context.Context, desired *appsv1.Deployment) error {
	deployments := s.clientSet.AppsV1().Deployments(desired.Namespace)
	existing, err := deployments.Get(ctx, desired.Name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		_, err = deployments.Create(ctx, desired, metav1.CreateOptions{})
	case err == nil:
		desired.ResourceVersion = existing.ResourceVersion
		_, err = deployments.Update(ctx, desired, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to apply deployment %s/%s: %w", desired.Namespace, desired.Name, err)
	}
	return nil
}

func (s *StandaloneService) applyService(ctx context.Context, desired *v1.Service) error {
	services := s.clientSet.CoreV1().Services(desired.Namespace)
	existing, err := services.Get(ctx, desired.Name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		_, err = services.Create(ctx, desired, metav1.CreateOptions{})
	case err == nil:
		desired.ResourceVersion = existing.ResourceVersion
		desired.Spec.ClusterIP = existing.Spec.ClusterIP
		_, err = services.Update(ctx, desired, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to apply service %s/%s: %w", desired.Namespace, desired.Name, err)
	}
	return nil
}

func flinkConfigMap(meta metav1.ObjectMeta, config conf.Configuration) (*v1.ConfigMap, error) {
	content, err := yaml.Marshal(map[string]string(config))
	if err != nil {
		return nil, fmt.Errorf("failed to render %s for %s/%s: %w", conf.FlinkConfFile, meta.Namespace, meta.Name, err)
	}
	return &v1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      configMapName(meta.Name),
			Namespace: meta.Namespace,
			Labels:    map[string]string{LabelApp: meta.Name},
		},
		Data: map[string]string{conf.FlinkConfFile: string(content)},
	}, nil
}

func jobManagerDeployment(meta metav1.ObjectMeta, spec *v1beta1.FlinkDeploymentSpec, jobID string) *appsv1.Deployment {
	args := []string{"standalone-job", "--job-id", jobID}
	if spec.Job.EntryClass != "" {
		args = append(args, "--job-classname", spec.Job.EntryClass)
	}
	args = append(args, spec.Job.Args...)
	return clusterDeployment(meta, meta.Name, ComponentJobManager, 1, spec, args)
}

func taskManagerDeployment(meta metav1.ObjectMeta, spec *v1beta1.FlinkDeploymentSpec, config conf.Configuration) *appsv1.Deployment {
	slots := config.GetInt(conf.TaskManagerSlots)
	if slots < 1 {
		slots = 1
	}
	replicas := (config.GetInt(conf.ParallelismDefault) + slots - 1) / slots
	if replicas < 1 {
		replicas = 1
	}
	return clusterDeployment(meta, taskManagerName(meta.Name), ComponentTaskManager, int32(replicas), spec, []string{"taskmanager"})
}

func clusterDeployment(meta metav1.ObjectMeta, name string, component string, replicas int32,
	spec *v1beta1.FlinkDeploymentSpec, args []string) *appsv1.Deployment {
	podLabels := map[string]string{LabelApp: meta.Name, LabelComponent: component}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: meta.Namespace, Labels: podLabels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: podLabels},
			Strategy: appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType},
			Template: v1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
				Spec: v1.PodSpec{
					ServiceAccountName: spec.ServiceAccount,
					Containers: []v1.Container{{
						Name:            mainContainerName,
						Image:           spec.Image,
						ImagePullPolicy: v1.PullPolicy(spec.ImagePullPolicy),
						Args:            args,
						VolumeMounts:    []v1.VolumeMount{{Name: flinkConfVolume, MountPath: flinkConfDir}},
					}},
					Volumes: []v1.Volume{{
						Name: flinkConfVolume,
						VolumeSource: v1.VolumeSource{
							ConfigMap: &v1.ConfigMapVolumeSource{
								LocalObjectReference: v1.LocalObjectReference{Name: configMapName(meta.Name)},
							},
						},
					}},
				},
			},
		},
	}
}

func restService(meta metav1.ObjectMeta, config conf.Configuration) *v1.Service {
	port := int32(config.GetInt(conf.RestPort))
	return &v1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      restServiceName(meta.Name),
			Namespace: meta.Namespace,
			Labels:    map[string]string{LabelApp: meta.Name},
		},
		Spec: v1.ServiceSpec{
			Selector: map[string]string{LabelApp: meta.Name, LabelComponent: ComponentJobManager},
			Ports: []v1.ServicePort{{
				Name:       restPortName,
				Port:       port,
				TargetPort: intstr.FromInt32(port),
			}},
		},
	}
}

func restURL(config conf.Configuration) string {
	address := config.GetString(conf.RestAddress)
	if address == "" {
		address = restServiceName(config.GetString(conf.KubernetesClusterID)) + "." + config.GetString(conf.KubernetesNamespace)
	}
	return "http://" + net.JoinHostPort(address, strconv.Itoa(config.GetInt(conf.RestPort)))
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func configMapName(name string) string {
	return "flink-config-" + name
}

func taskManagerName(name string) string {
	return name + "-taskmanager"
}

func restServiceName(name string) string {
	return name + "-rest"
}

func ignoreNotFound(err error) error {
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

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
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	apis "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	crclient "sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/apache/flink-k8s-operator/pkg/apis/flink.apache.org/v1beta1"
	"github.com/apache/flink-k8s-operator/pkg/conf"
	"github.com/apache/flink-k8s-operator/pkg/log"
)

type OperatorKubeClient struct {
	clientSet kubernetes.Interface
	client    crclient.Client
	scheme    *runtime.Scheme
	configs   *rest.Config
}

// NewScheme returns a scheme with the core types and FlinkDeployment.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1beta1.AddToScheme(scheme))
	return scheme
}

func NewKubeClient(kc string) (KubeClient, error) {
	config, err := CreateRestConfig(kc)
	if err != nil {
		return nil, err
	}
	operatorConf := conf.GetOperatorConf()
	config.QPS = float32(operatorConf.KubeQPS)
	config.Burst = operatorConf.KubeBurst
	return NewKubeClientForConfig(config)
}

func NewKubeClientForConfig(config *rest.Config) (KubeClient, error) {
	configuredClient, err := kubernetes.NewForConfig(config)
	if err != nil {
		log.Log(log.Client).Error("failed to get Clientset", zap.Error(err))
		return nil, err
	}
	scheme := NewScheme()
	crClient, err := crclient.New(config, crclient.Options{Scheme: scheme})
	if err != nil {
		log.Log(log.Client).Error("failed to create resource client", zap.Error(err))
		return nil, err
	}
	return &OperatorKubeClient{
		clientSet: configuredClient,
		client:    crClient,
		scheme:    scheme,
		configs:   config,
	}, nil
}

func CreateRestConfig(kc string) (*rest.Config, error) {
	// attempt to use in-cluster config
	config, err := rest.InClusterConfig()
	if err != nil && err != rest.ErrNotInCluster {
		log.Log(log.Client).Error("failed to create REST config", zap.Error(err))
		return nil, err
	}
	if config != nil {
		return config, nil
	}

	// fall back to kubeconfig if present
	if kc == "" {
		kc = DefaultKubeConfigPath()
	}
	log.Log(log.Client).Info(fmt.Sprintf("Not running inside Kubernetes; using KUBECONFIG at %s", kc))
	config, err = clientcmd.BuildConfigFromFlags("", kc)
	if err != nil {
		log.Log(log.Client).Error("failed to create kubeClient configs", zap.Error(err))
		return config, err
	}
	return config, nil
}

// DefaultKubeConfigPath is $KUBECONFIG, or .kube/config in the home directory.
func DefaultKubeConfigPath() string {
	if kc := os.Getenv(clientcmd.RecommendedConfigPathEnvVar); kc != "" {
		return kc
	}
	return filepath.Join(homedir.HomeDir(), clientcmd.RecommendedHomeDir, clientcmd.RecommendedFileName)
}

func (nc *OperatorKubeClient) GetClientSet() kubernetes.Interface {
	return nc.clientSet
}

func (nc *OperatorKubeClient) GetClient() crclient.Client {
	return nc.client
}

func (nc *OperatorKubeClient) GetScheme() *runtime.Scheme {
	return nc.scheme
}

func (nc *OperatorKubeClient) GetConfigs() *rest.Config {
	return nc.configs
}

func (nc *OperatorKubeClient) GetConfigMaps(ctx context.Context, namespace string, names ...string) ([]*v1.ConfigMap, error) {
	result := make([]*v1.ConfigMap, 0, len(names))
	for _, name := range names {
		configmap, err := nc.clientSet.CoreV1().ConfigMaps(namespace).Get(ctx, name, apis.GetOptions{})
		if err != nil {
			if errors.IsNotFound(err) {
				log.Log(log.Client).Debug("configmap not found",
					zap.String("namespace", namespace),
					zap.String("name", name))
				continue
			}
			log.Log(log.Client).Warn("failed to get configmap",
				zap.String("namespace", namespace),
				zap.String("name", name),
				zap.Error(err))
			return nil, err
		}
		result = append(result, configmap)
	}
	return result, nil
}

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

package conf

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	v1 "k8s.io/api/core/v1"

	"github.com/apache/flink-k8s-operator/pkg/log"
)

// OperatorConf is the process wide operator configuration, loaded from the
// operator ConfigMaps.
type OperatorConf struct {
	WatchedNamespace  string        `json:"watchedNamespace"`
	KubeQPS           int           `json:"kubeQPS"`
	KubeBurst         int           `json:"kubeBurst"`
	ReconcileInterval time.Duration `json:"reconcileInterval"`

	// Defaults is applied to every resource before its own flinkConfiguration.
	Defaults Configuration `json:"defaults"`
}

const (
	EnvOperatorNamespace     = "OPERATOR_NAMESPACE"
	DefaultOperatorNamespace = "flink-operator"
)

var confHolder atomic.Pointer[OperatorConf]

func init() {
	confHolder.Store(CreateDefaultConfig())
}

func GetOperatorConf() *OperatorConf {
	return confHolder.Load()
}

// SetOperatorConf replaces the active configuration. Used on startup and in
// tests; ConfigMap driven updates go through UpdateConfigMaps.
func SetOperatorConf(conf *OperatorConf) {
	confHolder.Store(conf)
}

// GetOperatorNamespace returns the namespace holding the operator ConfigMaps.
func GetOperatorNamespace() string {
	if ns := os.Getenv(EnvOperatorNamespace); ns != "" {
		return ns
	}
	return DefaultOperatorNamespace
}

func CreateDefaultConfig() *OperatorConf {
	return &OperatorConf{
		WatchedNamespace:  WatchedNamespace.Default,
		KubeQPS:           KubeQPS.Default,
		KubeBurst:         KubeBurst.Default,
		ReconcileInterval: ReconcileInterval.Default,
		Defaults:          Configuration{},
	}
}

func (c *OperatorConf) Clone() *OperatorConf {
	clone := *c
	clone.Defaults = c.Defaults.Clone()
	return &clone
}

// UpdateConfigMaps applies the given ConfigMaps in order, later maps
// override earlier ones. Process settings are only applied when initial is
// set; on later updates a changed process setting is logged and ignored.
func UpdateConfigMaps(configMaps []*v1.ConfigMap, initial bool) error {
	data, err := FlattenConfigMaps(configMaps)
	if err != nil {
		return err
	}

	prev := GetOperatorConf()
	base := prev
	if initial {
		base = CreateDefaultConfig()
	}
	newConf, errs := parseConfig(data, base)
	if errs != nil {
		for _, e := range errs {
			log.Log(log.Config).Error("failed to parse operator configuration", zap.Error(e))
		}
		return errors.Join(errs...)
	}
	if !initial {
		checkNonReloadable(prev, newConf)
	}
	SetOperatorConf(newConf)
	log.UpdateLoggingConfig(data)
	log.Log(log.Config).Info("operator configuration updated",
		zap.Bool("initial", initial),
		zap.Duration("reconcileInterval", newConf.ReconcileInterval),
		zap.Int("defaults", len(newConf.Defaults)))
	return nil
}

func checkNonReloadable(prev *OperatorConf, next *OperatorConf) {
	logger := log.Log(log.Config)
	if next.WatchedNamespace != prev.WatchedNamespace {
		logger.Warn("ignoring non-reloadable configuration change", zap.String("key", WatchedNamespace.Key))
		next.WatchedNamespace = prev.WatchedNamespace
	}
	if next.KubeQPS != prev.KubeQPS {
		logger.Warn("ignoring non-reloadable configuration change", zap.String("key", KubeQPS.Key))
		next.KubeQPS = prev.KubeQPS
	}
	if next.KubeBurst != prev.KubeBurst {
		logger.Warn("ignoring non-reloadable configuration change", zap.String("key", KubeBurst.Key))
		next.KubeBurst = prev.KubeBurst
	}
}

// FlattenConfigMaps merges the data of all non-nil ConfigMaps. A
// flink-conf.yaml entry is parsed and its keys flattened into dotted form;
// plain entries take precedence over the YAML content of the same map.
func FlattenConfigMaps(configMaps []*v1.ConfigMap) (map[string]string, error) {
	result := make(map[string]string)
	for _, cm := range configMaps {
		if cm == nil {
			continue
		}
		if content, ok := cm.Data[FlinkConfFile]; ok {
			parsed, err := parseFlinkConfYaml(content)
			if err != nil {
				return nil, fmt.Errorf("configmap %s/%s: %w", cm.Namespace, cm.Name, err)
			}
			for k, v := range parsed {
				result[k] = v
			}
		}
		for k, v := range cm.Data {
			if k == FlinkConfFile {
				continue
			}
			result[k] = v
		}
	}
	return result, nil
}

func parseFlinkConfYaml(content string) (map[string]string, error) {
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FlinkConfFile, err)
	}
	result := make(map[string]string)
	flatten("", raw, result)
	return result, nil
}

func flatten(prefix string, value interface{}, out map[string]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, v[k], out)
		}
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
		out[prefix] = strings.Join(items, ";")
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

func parseConfig(config map[string]string, prev *OperatorConf) (*OperatorConf, []error) {
	if config == nil {
		config = make(map[string]string)
	}

	conf := prev.Clone()
	parser := &configParser{config: config}
	parser.stringVar(&conf.WatchedNamespace, WatchedNamespace.Key)
	parser.intVar(&conf.KubeQPS, KubeQPS.Key)
	parser.intVar(&conf.KubeBurst, KubeBurst.Key)
	parser.durationVar(&conf.ReconcileInterval, ReconcileInterval.Key)

	// per resource options are validated here so a broken ConfigMap is
	// rejected as a whole instead of silently falling back later
	var ignored bool
	var ignoredDuration time.Duration
	for _, opt := range []BoolOption{JobUpgradeIgnorePendingSavepoint, JobRestartFailed, DeploymentRollbackEnabled} {
		parser.boolVar(&ignored, opt.Key)
	}
	for _, opt := range []DurationOption{PeriodicSavepointInterval, DeploymentReadinessTimeout, SavepointTimeout} {
		parser.durationVar(&ignoredDuration, opt.Key)
	}

	if len(parser.errors) > 0 {
		return nil, parser.errors
	}

	conf.Defaults = Configuration{}
	for k, v := range config {
		if strings.HasPrefix(k, "log.") {
			continue
		}
		conf.Defaults[k] = v
	}
	return conf, nil
}

type configParser struct {
	config map[string]string
	errors []error
}

func (cp *configParser) stringVar(p *string, name string) {
	if value, ok := cp.config[name]; ok {
		*p = value
	}
}

func (cp *configParser) intVar(p *int, name string) {
	if value, ok := cp.config[name]; ok {
		int64Value, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil {
			cp.errors = append(cp.errors, fmt.Errorf("%s: %w", name, err))
			return
		}
		*p = int(int64Value)
	}
}

func (cp *configParser) boolVar(p *bool, name string) {
	if value, ok := cp.config[name]; ok {
		boolValue, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			cp.errors = append(cp.errors, fmt.Errorf("%s: %w", name, err))
			return
		}
		*p = boolValue
	}
}

func (cp *configParser) durationVar(p *time.Duration, name string) {
	if value, ok := cp.config[name]; ok {
		durationValue, err := ParseDuration(value)
		if err != nil {
			cp.errors = append(cp.errors, fmt.Errorf("%s: %w", name, err))
			return
		}
		*p = durationValue
	}
}

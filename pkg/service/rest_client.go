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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/apache/flink-k8s-operator/pkg/log"
)

const (
	operationCompleted = "COMPLETED"

	defaultRequestTimeout = 30 * time.Second
	savepointPollInterval = time.Second
)

// RestClient calls the REST API of a Flink JobManager.
type RestClient struct {
	httpClient   *http.Client
	pollInterval time.Duration
}

func NewRestClient() *RestClient {
	return &RestClient{
		httpClient:   &http.Client{Timeout: defaultRequestTimeout},
		pollInterval: savepointPollInterval,
	}
}

type triggerResponse struct {
	RequestID string `json:"request-id"`
}

type operationStatus struct {
	Status struct {
		ID string `json:"id"`
	} `json:"status"`
	Operation *struct {
		Location     string `json:"location"`
		FailureCause *struct {
			Class      string `json:"class"`
			StackTrace string `json:"stack-trace"`
		} `json:"failure-cause"`
	} `json:"operation"`
}

type restError struct {
	Errors []string `json:"errors"`
}

// StopWithSavepoint stops the job after taking a savepoint and returns the
// trigger id of the savepoint operation.
func (c *RestClient) StopWithSavepoint(ctx context.Context, baseURL string, jobID string, targetDirectory string) (string, error) {
	body := map[string]interface{}{"drain": false}
	if targetDirectory != "" {
		body["targetDirectory"] = targetDirectory
	}
	response := &triggerResponse{}
	if err := c.do(ctx, http.MethodPost, baseURL+"/jobs/"+url.PathEscape(jobID)+"/stop", body, response); err != nil {
		return "", fmt.Errorf("stop with savepoint of job %s failed: %w", jobID, err)
	}
	return response.RequestID, nil
}

// TriggerSavepoint starts a savepoint of the running job and returns its
// trigger id.
func (c *RestClient) TriggerSavepoint(ctx context.Context, baseURL string, jobID string, targetDirectory string) (string, error) {
	body := map[string]interface{}{"cancel-job": false}
	if targetDirectory != "" {
		body["target-directory"] = targetDirectory
	}
	response := &triggerResponse{}
	if err := c.do(ctx, http.MethodPost, baseURL+"/jobs/"+url.PathEscape(jobID)+"/savepoints", body, response); err != nil {
		return "", fmt.Errorf("savepoint trigger of job %s failed: %w", jobID, err)
	}
	return response.RequestID, nil
}

// SavepointLocation returns the location of a completed savepoint, or an
// empty string while the savepoint is still in progress.
func (c *RestClient) SavepointLocation(ctx context.Context, baseURL string, jobID string, triggerID string) (string, error) {
	status := &operationStatus{}
	path := baseURL + "/jobs/" + url.PathEscape(jobID) + "/savepoints/" + url.PathEscape(triggerID)
	if err := c.do(ctx, http.MethodGet, path, nil, status); err != nil {
		return "", err
	}
	if status.Status.ID != operationCompleted {
		return "", nil
	}
	if status.Operation == nil {
		return "", fmt.Errorf("savepoint %s of job %s completed without a result", triggerID, jobID)
	}
	if cause := status.Operation.FailureCause; cause != nil {
		return "", fmt.Errorf("savepoint %s of job %s failed: %s", triggerID, jobID, cause.Class)
	}
	return status.Operation.Location, nil
}

// WaitForSavepoint polls the savepoint until it completes or timeout passes.
func (c *RestClient) WaitForSavepoint(ctx context.Context, baseURL string, jobID string, triggerID string,
	timeout time.Duration) (string, error) {
	var location string
	err := wait.PollUntilContextTimeout(ctx, c.pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		var err error
		location, err = c.SavepointLocation(ctx, baseURL, jobID, triggerID)
		return location != "", err
	})
	if err != nil {
		return "", fmt.Errorf("waiting for savepoint %s of job %s: %w", triggerID, jobID, err)
	}
	return location, nil
}

// CancelJob cancels the job without a savepoint.
func (c *RestClient) CancelJob(ctx context.Context, baseURL string, jobID string) error {
	if err := c.do(ctx, http.MethodPatch, baseURL+"/jobs/"+url.PathEscape(jobID)+"?mode=cancel", nil, nil); err != nil {
		return fmt.Errorf("cancel of job %s failed: %w", jobID, err)
	}
	return nil
}

func (c *RestClient) do(ctx context.Context, method string, target string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	log.Log(log.Service).Debug("flink rest call",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		restErr := &restError{}
		if decodeErr := json.NewDecoder(resp.Body).Decode(restErr); decodeErr == nil && len(restErr.Errors) > 0 {
			return fmt.Errorf("%s %s returned %d: %s", method, target, resp.StatusCode, restErr.Errors[0])
		}
		return fmt.Errorf("%s %s returned %d", method, target, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

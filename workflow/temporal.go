/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package workflow

import (
	"context"
	"crypto/tls"
	"errors"

	"github.com/sirupsen/logrus"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/jerry-enebeli/remit/config"
)

type temporalClient struct {
	client client.Client
}

// DialTemporal is the Dialer for a Temporal cluster.
func DialTemporal(ctx context.Context, conf config.WorkflowConfig) (OrchestratorClient, error) {
	opts := client.Options{
		HostPort:  conf.ServerURL,
		Namespace: conf.Namespace,
		Logger:    temporalLogger{entry: logrus.WithField("component", "temporal")},
	}
	if conf.EnableTLS {
		opts.ConnectionOptions = client.ConnectionOptions{TLS: &tls.Config{MinVersion: tls.VersionTLS12}}
	}

	c, err := client.DialContext(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &temporalClient{client: c}, nil
}

func (t *temporalClient) ExecuteWorkflow(ctx context.Context, opts StartOptions, workflowName string, args ...interface{}) (Handle, error) {
	run, err := t.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       opts.ID,
		TaskQueue:                opts.TaskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, workflowName, args...)

	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &alreadyStarted) {
		return Handle{WorkflowID: opts.ID, RunID: alreadyStarted.RunId}, nil
	}
	if err != nil {
		return Handle{}, err
	}
	return Handle{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

func (t *temporalClient) CheckHealth(ctx context.Context) error {
	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return err
}

func (t *temporalClient) Close() {
	t.client.Close()
}

// temporalLogger routes SDK logs through logrus.
type temporalLogger struct {
	entry *logrus.Entry
}

func (l temporalLogger) with(keyvals []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok {
			fields[key] = keyvals[i+1]
		}
	}
	return l.entry.WithFields(fields)
}

func (l temporalLogger) Debug(msg string, keyvals ...interface{}) { l.with(keyvals).Debug(msg) }
func (l temporalLogger) Info(msg string, keyvals ...interface{})  { l.with(keyvals).Info(msg) }
func (l temporalLogger) Warn(msg string, keyvals ...interface{})  { l.with(keyvals).Warn(msg) }
func (l temporalLogger) Error(msg string, keyvals ...interface{}) { l.with(keyvals).Error(msg) }

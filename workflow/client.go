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

	"github.com/jerry-enebeli/remit/config"
)

// StartOptions identifies a workflow run at the orchestrator. Starting twice with the same ID must
// not execute the workflow twice.
type StartOptions struct {
	ID        string
	TaskQueue string
}

// Handle is what the orchestrator hands back for a started workflow.
type Handle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// OrchestratorClient is a connection to a durable workflow engine.
type OrchestratorClient interface {
	ExecuteWorkflow(ctx context.Context, opts StartOptions, workflowName string, args ...interface{}) (Handle, error)
	CheckHealth(ctx context.Context) error
	Close()
}

// Dialer opens an OrchestratorClient. ctx bounds the connection attempt.
type Dialer func(ctx context.Context, conf config.WorkflowConfig) (OrchestratorClient, error)

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

package remit

import (
	"context"
	"embed"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/remit/database"
	"github.com/jerry-enebeli/remit/internal/apierror"
	redlock "github.com/jerry-enebeli/remit/internal/lock"
	"github.com/jerry-enebeli/remit/model"
	"github.com/jerry-enebeli/remit/workflow"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Remit ties the transaction store to the stage queues, the lock service, the external providers
// and the workflow dispatch layer.
type Remit struct {
	datasource database.IDataSource
	queue      MessageQueue
	locks      redlock.LockService
	providers  Providers
	workflows  *workflow.Factory
}

// NewRemit wires a Remit. workflows may be nil when the process never dispatches workflow types.
func NewRemit(datasource database.IDataSource, queue MessageQueue, locks redlock.LockService, providers Providers, workflows *workflow.Factory) *Remit {
	return &Remit{
		datasource: datasource,
		queue:      queue,
		locks:      locks,
		providers:  providers,
		workflows:  workflows,
	}
}

// CreateTransaction records a queue pipeline transaction as PENDING and hands it to validation.
// A failed enqueue is not returned: the valid transaction poller picks the transaction up.
func (r *Remit) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Creating Transaction")
	defer span.End()

	if txn.Type == "" {
		txn.Type = model.TypeCardWalletPurchase
	}
	if txn.Type.IsWorkflowType() {
		return nil, apierror.NewAPIError(apierror.ErrNotSupported, fmt.Sprintf("Transaction type %s must be initiated through its workflow", txn.Type), nil)
	}
	txn.Status = model.StatusPending

	created, err := r.datasource.CreateTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}

	if err := r.queue.Enqueue(ctx, QueueValidation, created.TransactionID); err != nil {
		logrus.WithError(err).WithField("transaction_id", created.TransactionID).Warn("failed to enqueue new transaction, poller will pick it up")
	}
	return created, nil
}

// InitiateTransaction preprocesses a workflow type request, records the transaction as INITIATED and
// starts its workflow. A transaction whose workflow could not be started is moved to FAILED rather
// than left INITIATED: INITIATED has no queue route, so no poller would ever pick it up again. The
// caller still gets the WORKFLOW_SERVER_UNAVAILABLE error and may resubmit.
func (r *Remit) InitiateTransaction(ctx context.Context, req *model.InitiateTransactionRequest) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Initiating Workflow Transaction")
	defer span.End()

	w, err := r.workflow(req.Type)
	if err != nil {
		return nil, err
	}
	if err := w.PreprocessTransactionParams(ctx, req); err != nil {
		return nil, err
	}

	txn := req.ToTransaction()
	txn.Status = model.StatusInitiated
	created, err := r.datasource.CreateTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{"transaction_id": created.TransactionID, "type": created.Type})

	handle, err := w.InitiateWorkflow(ctx, created, req)
	if err != nil {
		span.RecordError(err)
		exception := exceptionFromError("Workflow could not be started", err)
		if updateErr := r.transition(ctx, created, model.StatusFailed, &exception); updateErr != nil {
			logger.WithError(updateErr).Error("failed to mark transaction as failed")
		}
		return nil, err
	}

	created.References.WorkflowID = handle.WorkflowID
	created.References.WorkflowRunID = handle.RunID
	if err := r.datasource.UpdateTransaction(ctx, created); err != nil {
		// the workflow is running and owns the transaction now
		logger.WithError(err).Error("failed to record workflow handle")
	}

	logger.WithField("workflow_id", handle.WorkflowID).Info("workflow transaction initiated")
	return created, nil
}

// GetTransactionQuote prices a workflow type request without recording anything.
func (r *Remit) GetTransactionQuote(ctx context.Context, req model.QuoteRequest) (*model.Quote, error) {
	w, err := r.workflow(req.Type)
	if err != nil {
		return nil, err
	}
	return w.GetTransactionQuote(ctx, req)
}

func (r *Remit) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return r.datasource.GetTransaction(ctx, id)
}

func (r *Remit) workflow(transactionType model.TransactionType) (workflow.Workflow, error) {
	if r.workflows == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotSupported, "Workflow dispatch is not configured", nil)
	}
	return r.workflows.Get(transactionType)
}

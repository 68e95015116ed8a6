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
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jerry-enebeli/remit/internal/apierror"
	redlock "github.com/jerry-enebeli/remit/internal/lock"
	"github.com/jerry-enebeli/remit/model"
)

// stage is the part of a processor that differs between pipeline steps.
type stage interface {
	name() string
	// preStates lists the statuses the stage accepts. Anything else is a no-op.
	preStates() []model.Status
	run(ctx context.Context, txn *model.Transaction) error
}

// Processor is a QueueProcessor running one stage under the transaction lock.
type Processor struct {
	remit *Remit
	queue QueueName
	stage stage
}

func (r *Remit) newProcessor(queue QueueName, s stage) *Processor {
	return &Processor{remit: r, queue: queue, stage: s}
}

// Processors returns one processor per stage queue.
func (r *Remit) Processors() map[QueueName]*Processor {
	return map[QueueName]*Processor{
		QueueValidation:             r.newProcessor(QueueValidation, &validationStage{remit: r}),
		QueueFiatInitiation:         r.newProcessor(QueueFiatInitiation, &fiatInitiationStage{remit: r}),
		QueueFiatStatus:             r.newProcessor(QueueFiatStatus, &fiatStatusStage{remit: r}),
		QueueTransferInitiation:     r.newProcessor(QueueTransferInitiation, &transferInitiationStage{remit: r}),
		QueueInternalTransferStatus: r.newProcessor(QueueInternalTransferStatus, &transferStatusStage{remit: r}),
		QueueOnChainSettlement:      r.newProcessor(QueueOnChainSettlement, &settlementStage{remit: r}),
		QueueFailure:                r.newProcessor(QueueFailure, &failureStage{remit: r}),
	}
}

func (p *Processor) Queue() QueueName {
	return p.queue
}

// ProcessMessage acquires the transaction lock, checks the pre-state, stamps the processing time
// and runs the stage. A nil return acknowledges the message. Errors are left to redelivery.
func (p *Processor) ProcessMessage(ctx context.Context, transactionID string) error {
	ctx, span := tracer.Start(ctx, p.stage.name())
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID), attribute.String("queue", string(p.queue)))

	logger := logrus.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"stage":          p.stage.name(),
		"trace_id":       trace.SpanContextFromContext(ctx).TraceID().String(),
	})

	token, err := p.remit.locks.AcquireLockForKey(ctx, transactionID, redlock.EntityTransaction)
	if err != nil {
		return fmt.Errorf("acquire lock for %s: %w", transactionID, err)
	}
	if token == "" {
		logger.Info("transaction is locked by another worker, skipping")
		return nil
	}
	defer func() {
		if err := p.remit.locks.ReleaseLockForKey(context.WithoutCancel(ctx), transactionID, redlock.EntityTransaction, token); err != nil {
			logger.WithError(err).Error("failed to release transaction lock")
		}
	}()

	txn, err := p.remit.datasource.GetTransaction(ctx, transactionID)
	if err != nil {
		if apierror.HasCode(err, apierror.ErrNotFound) {
			logger.Warn("transaction not found, dropping message")
			return nil
		}
		return err
	}

	if !p.accepts(txn.Status) {
		logger.WithField("status", txn.Status).Info("transaction is not in an expected pre-state, skipping")
		return nil
	}

	if err := p.remit.datasource.UpdateLastProcessingTimestamp(ctx, transactionID); err != nil {
		return err
	}

	err = p.stage.run(ctx, txn)
	if err != nil {
		span.RecordError(err)
		logger.WithError(err).Warn("stage failed, leaving message for redelivery")
	}
	return err
}

func (p *Processor) accepts(status model.Status) bool {
	for _, s := range p.stage.preStates() {
		if s == status {
			return true
		}
	}
	return false
}

func (p *Processor) SubscriptionErrorHandler(err error) {
	logrus.WithError(err).WithField("queue", p.queue).Error("queue subscription error")
}

func (p *Processor) ProcessingErrorHandler(err error) {
	logrus.WithError(err).WithField("queue", p.queue).Error("queue message processing error")
}

// transition persists next after checking the edge exists.
func (r *Remit) transition(ctx context.Context, txn *model.Transaction, next model.Status, exception *model.TransactionException) error {
	if !txn.Status.CanTransitionTo(next) {
		return model.InvalidTransitionError{From: txn.Status, To: next}
	}
	if err := r.datasource.UpdateTransactionStatus(ctx, txn.TransactionID, next, exception); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"transaction_id": txn.TransactionID, "from": txn.Status, "to": next}).Info("transaction status updated")
	txn.Status = next
	if exception != nil {
		txn.AppendException(*exception)
	}
	return nil
}

// advance transitions and hands the transaction to the queue of its new status. A lost enqueue is
// recovered by the valid transaction poller, so it does not fail the stage.
func (r *Remit) advance(ctx context.Context, txn *model.Transaction, next model.Status, exception *model.TransactionException) error {
	if err := r.transition(ctx, txn, next, exception); err != nil {
		return err
	}

	route, ok := RouteFor(next)
	if !ok {
		return nil
	}
	if err := r.queue.Enqueue(ctx, route.Queue, txn.TransactionID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"transaction_id": txn.TransactionID, "queue": route.Queue}).
			Warn("enqueue failed, poller will pick the transaction up")
	}
	return nil
}

// failOrRetry moves the transaction to failedStatus for deterministic provider refusals and
// returns every other error untouched so the message is redelivered.
func (r *Remit) failOrRetry(ctx context.Context, txn *model.Transaction, failedStatus model.Status, message string, err error) error {
	if !IsRecoverableFailure(err) {
		return err
	}
	exception := exceptionFromError(message, err)
	return r.advance(ctx, txn, failedStatus, &exception)
}

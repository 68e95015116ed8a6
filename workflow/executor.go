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
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/internal/apierror"
	"github.com/jerry-enebeli/remit/internal/notification"
	"github.com/jerry-enebeli/remit/model"
)

// Registered workflow names at the orchestrator.
const (
	WalletTransferWorkflowName   = "WalletTransferWorkflow"
	WalletWithdrawalWorkflowName = "WalletWithdrawalWorkflow"
	WalletDepositWorkflowName    = "WalletDepositWorkflow"
	PayrollDepositWorkflowName   = "PayrollDepositWorkflow"
	CreditAdjustmentWorkflowName = "CreditAdjustmentWorkflow"
	DebitAdjustmentWorkflowName  = "DebitAdjustmentWorkflow"
)

type WalletTransferArgs struct {
	TransactionID    string          `json:"transaction_id"`
	DebitConsumerID  string          `json:"debit_consumer_id"`
	CreditConsumerID string          `json:"credit_consumer_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Memo             string          `json:"memo,omitempty"`
}

type WalletWithdrawalArgs struct {
	TransactionID       string                  `json:"transaction_id"`
	ConsumerID          string                  `json:"consumer_id"`
	Amount              decimal.Decimal         `json:"amount"`
	Currency            string                  `json:"currency"`
	DestinationAmount   decimal.Decimal         `json:"destination_amount"`
	DestinationCurrency string                  `json:"destination_currency"`
	ExchangeRate        decimal.Decimal         `json:"exchange_rate"`
	Fee                 decimal.Decimal         `json:"fee"`
	WithdrawalDetails   model.WithdrawalDetails `json:"withdrawal_details"`
}

type WalletDepositArgs struct {
	TransactionID  string          `json:"transaction_id"`
	ConsumerID     string          `json:"consumer_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	CreditAmount   decimal.Decimal `json:"credit_amount"`
	CreditCurrency string          `json:"credit_currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	Fee            decimal.Decimal `json:"fee"`
}

type PayrollDepositArgs struct {
	TransactionID string          `json:"transaction_id"`
	PayrollID     string          `json:"payroll_id"`
	EmployerID    string          `json:"employer_id"`
	EmployeeID    string          `json:"employee_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// AdjustmentArgs carries both credit and debit adjustments.
type AdjustmentArgs struct {
	TransactionID string          `json:"transaction_id"`
	ConsumerID    string          `json:"consumer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason"`
}

// Executor owns the single orchestrator connection of the process. The connection is dialled on
// first use and dropped whenever a call through it fails. Dialling happens outside mu, and callers
// that arrive while a dial is in flight wait for its outcome or their own context, whichever is first.
type Executor struct {
	conf config.WorkflowConfig
	dial Dialer

	mu         sync.Mutex
	client     OrchestratorClient
	connecting chan struct{}
	// alerted is set once an exhausted connect has been reported and cleared by the next success.
	alerted bool
	alert   func(error)
}

func NewExecutor(conf config.WorkflowConfig, dial Dialer) *Executor {
	return &Executor{conf: conf, dial: dial, alert: notification.NotifyError}
}

var errNotConnected = errors.New("not connected to workflow server")

// Init establishes the orchestrator connection if there is none, retrying with a fixed delay up to
// the configured number of attempts. Exhausting them raises one alert per outage and returns false.
func (e *Executor) Init(ctx context.Context) bool {
	e.mu.Lock()
	if e.client != nil {
		e.mu.Unlock()
		return true
	}
	if inflight := e.connecting; inflight != nil {
		e.mu.Unlock()
		select {
		case <-inflight:
			return e.current() != nil
		case <-ctx.Done():
			return false
		}
	}
	done := make(chan struct{})
	e.connecting = done
	e.mu.Unlock()

	c, attempts, err := e.connect(ctx)

	e.mu.Lock()
	e.connecting = nil
	if err == nil {
		e.client = c
		e.alerted = false
	}
	report := err != nil && !e.alerted
	if report {
		e.alerted = true
	}
	e.mu.Unlock()
	close(done)

	if err != nil {
		if report {
			e.alert(errors.Wrapf(err, "unable to connect to workflow server %s after %d attempts", e.conf.ServerURL, attempts))
		}
		return false
	}

	logrus.WithField("server", e.conf.ServerURL).Info("connected to workflow server")
	return true
}

// connect dials with the configured retry policy. It never touches the executor's state.
func (e *Executor) connect(ctx context.Context) (OrchestratorClient, int, error) {
	maxAttempts := e.conf.MaxConnectAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		client  OrchestratorClient
		attempt int
	)
	dial := func() error {
		attempt++
		dialCtx, cancel := context.WithTimeout(ctx, e.conf.ConnectTimeout())
		defer cancel()

		c, err := e.dial(dialCtx, e.conf)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "server": e.conf.ServerURL}).
				Warn("failed to connect to workflow server")
			return err
		}
		client = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.conf.ConnectRetryDelay()), uint64(maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, attempt, err
	}
	return client, attempt, nil
}

func (e *Executor) current() OrchestratorClient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// reset drops the connection so the next call dials again.
func (e *Executor) reset(failed OrchestratorClient) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == failed && e.client != nil {
		e.client.Close()
		e.client = nil
	}
}

// Close releases the orchestrator connection.
func (e *Executor) Close() {
	e.reset(e.current())
}

func (e *Executor) start(ctx context.Context, workflowName, transactionID, workflowID string, args interface{}) (Handle, error) {
	logger := logrus.WithFields(logrus.Fields{"workflow": workflowName, "workflow_id": workflowID, "transaction_id": transactionID})

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if !e.Init(ctx) {
			return Handle{}, apierror.NewAPIError(apierror.ErrWorkflowServerUnavailable, "Unable to contact workflow server", nil)
		}

		c := e.current()
		if c == nil {
			continue
		}
		handle, err := c.ExecuteWorkflow(ctx, StartOptions{ID: workflowID, TaskQueue: e.conf.TaskQueue}, workflowName, args)
		if err == nil {
			logger.WithField("run_id", handle.RunID).Info("workflow started")
			return handle, nil
		}

		lastErr = err
		logger.WithError(err).WithField("attempt", attempt).Warn("failed to start workflow, resetting connection")
		e.reset(c)
	}

	e.alert(errors.Wrapf(lastErr, "unable to start %s for transaction %s", workflowName, transactionID))
	return Handle{}, apierror.NewAPIError(apierror.ErrWorkflowServerUnavailable, "Unable to contact workflow server", lastErr)
}

func (e *Executor) ExecuteWalletTransferWorkflow(ctx context.Context, transactionID, workflowID string, args WalletTransferArgs) (Handle, error) {
	return e.start(ctx, WalletTransferWorkflowName, transactionID, workflowID, args)
}

func (e *Executor) ExecuteWalletWithdrawalWorkflow(ctx context.Context, transactionID, workflowID string, args WalletWithdrawalArgs) (Handle, error) {
	return e.start(ctx, WalletWithdrawalWorkflowName, transactionID, workflowID, args)
}

func (e *Executor) ExecuteWalletDepositWorkflow(ctx context.Context, transactionID, workflowID string, args WalletDepositArgs) (Handle, error) {
	return e.start(ctx, WalletDepositWorkflowName, transactionID, workflowID, args)
}

func (e *Executor) ExecutePayrollWorkflow(ctx context.Context, transactionID, workflowID string, args PayrollDepositArgs) (Handle, error) {
	return e.start(ctx, PayrollDepositWorkflowName, transactionID, workflowID, args)
}

func (e *Executor) ExecuteCreditAdjustmentWorkflow(ctx context.Context, transactionID, workflowID string, args AdjustmentArgs) (Handle, error) {
	return e.start(ctx, CreditAdjustmentWorkflowName, transactionID, workflowID, args)
}

func (e *Executor) ExecuteDebitAdjustmentWorkflow(ctx context.Context, transactionID, workflowID string, args AdjustmentArgs) (Handle, error) {
	return e.start(ctx, DebitAdjustmentWorkflowName, transactionID, workflowID, args)
}

// HealthCheck reports whether the current connection answers. It never dials: without a
// connection it reports the server as unavailable and leaves reconnecting to the next workflow start.
func (e *Executor) HealthCheck(ctx context.Context) error {
	c := e.current()
	if c == nil {
		return apierror.NewAPIError(apierror.ErrWorkflowServerUnavailable, "Workflow server is not connected", errNotConnected)
	}
	if err := c.CheckHealth(ctx); err != nil {
		e.reset(c)
		return apierror.NewAPIError(apierror.ErrWorkflowServerUnavailable, "Workflow server health check failed", err)
	}
	return nil
}

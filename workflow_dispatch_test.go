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
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/internal/apierror"
	"github.com/jerry-enebeli/remit/model"
	"github.com/jerry-enebeli/remit/workflow"
)

type stubOrchestrator struct {
	mu     sync.Mutex
	err    error
	starts []workflow.StartOptions
}

func (s *stubOrchestrator) ExecuteWorkflow(_ context.Context, opts workflow.StartOptions, _ string, _ ...interface{}) (workflow.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, opts)
	if s.err != nil {
		return workflow.Handle{}, s.err
	}
	return workflow.Handle{WorkflowID: opts.ID, RunID: "run_" + opts.ID}, nil
}

func (s *stubOrchestrator) CheckHealth(context.Context) error { return s.err }

func (s *stubOrchestrator) Close() {}

type stubRates struct{}

func (stubRates) GetExchangeRate(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(4000), nil
}

func init() {
	config.MockConfig(&config.Configuration{ProjectName: "remit-test"})
}

func newWorkflowEnv(t *testing.T, orchestrator *stubOrchestrator, dialErr error) *testEnv {
	t.Helper()
	env := newTestEnv(t)

	executor := workflow.NewExecutor(config.WorkflowConfig{
		TaskQueue:           "remit-test",
		MaxConnectAttempts:  2,
		ConnectTimeoutMs:    100,
		ConnectRetryDelayMs: 1,
	}, func(context.Context, config.WorkflowConfig) (workflow.OrchestratorClient, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return orchestrator, nil
	})
	quoter, err := workflow.NewQuoter(stubRates{}, nil, &config.Configuration{
		Fees:     config.FeeConfig{ProcessingFeeFixed: "1", PercentageFee: "2", MinimumAmount: "5"},
		Workflow: config.WorkflowConfig{ExchangeRateCacheSec: 60},
	})
	require.NoError(t, err)

	env.remit = NewRemit(env.store, env.queue, env.locks, Providers{Notifier: env.notifier}, workflow.NewFactory(executor, quoter))
	return env
}

func walletTransferRequest() *model.InitiateTransactionRequest {
	return &model.InitiateTransactionRequest{
		Type:                  model.TypeWalletTransfer,
		InitiatingConsumerID:  "consumer_a",
		CreditConsumerIDOrTag: "consumer_b",
		DebitAmount:           decimal.NewFromInt(25),
		DebitCurrency:         "USD",
		Memo:                  "rent",
	}
}

func TestInitiateTransaction_StartsWorkflow(t *testing.T) {
	orchestrator := &stubOrchestrator{}
	env := newWorkflowEnv(t, orchestrator, nil)

	txn, err := env.remit.InitiateTransaction(context.Background(), walletTransferRequest())
	require.NoError(t, err)

	stored := env.store.get(t, txn.TransactionID)
	assert.Equal(t, model.StatusInitiated, stored.Status)
	assert.Equal(t, "wallet_transfer-"+txn.TransactionID, stored.References.WorkflowID)
	assert.Equal(t, "run_wallet_transfer-"+txn.TransactionID, stored.References.WorkflowRunID)
	assert.Equal(t, "consumer_a", stored.Debit.PartyID)
	assert.True(t, stored.Credit.Amount.Equal(decimal.NewFromInt(25)))

	require.Len(t, orchestrator.starts, 1)
	assert.Equal(t, "remit-test", orchestrator.starts[0].TaskQueue)
	// the orchestrator owns the transaction, nothing goes onto the pipeline queues
	assert.Empty(t, env.queue.all())
}

func TestInitiateTransaction_InvalidRequestStoresNothing(t *testing.T) {
	orchestrator := &stubOrchestrator{}
	env := newWorkflowEnv(t, orchestrator, nil)

	req := walletTransferRequest()
	req.CreditConsumerIDOrTag = "consumer_a"
	_, err := env.remit.InitiateTransaction(context.Background(), req)

	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
	assert.Empty(t, env.store.txns)
	assert.Empty(t, orchestrator.starts)
}

func TestInitiateTransaction_WorkflowStartFailureMarksFailed(t *testing.T) {
	orchestrator := &stubOrchestrator{err: errors.New("connection refused")}
	env := newWorkflowEnv(t, orchestrator, nil)

	_, err := env.remit.InitiateTransaction(context.Background(), walletTransferRequest())
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrWorkflowServerUnavailable))

	require.Len(t, env.store.txns, 1)
	for id := range env.store.txns {
		stored := env.store.get(t, id)
		assert.Equal(t, model.StatusFailed, stored.Status)
		assert.Len(t, stored.TransactionExceptions, 1)
	}
	assert.Len(t, orchestrator.starts, 2)
}

func TestInitiateTransaction_ServerUnreachable(t *testing.T) {
	env := newWorkflowEnv(t, nil, errors.New("dial tcp: connection refused"))

	_, err := env.remit.InitiateTransaction(context.Background(), walletTransferRequest())
	assert.True(t, apierror.HasCode(err, apierror.ErrWorkflowServerUnavailable))
}

func TestInitiateTransaction_UnsupportedType(t *testing.T) {
	env := newWorkflowEnv(t, &stubOrchestrator{}, nil)

	_, err := env.remit.InitiateTransaction(context.Background(), &model.InitiateTransactionRequest{Type: model.TypeCardWalletPurchase})
	assert.True(t, apierror.HasCode(err, apierror.ErrNotSupported))
	assert.Empty(t, env.store.txns)
}

func TestGetTransactionQuote_Withdrawal(t *testing.T) {
	env := newWorkflowEnv(t, &stubOrchestrator{}, nil)

	quote, err := env.remit.GetTransactionQuote(context.Background(), model.QuoteRequest{
		Type:     model.TypeWalletWithdrawal,
		Amount:   decimal.NewFromInt(100),
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.True(t, quote.ExchangeRate.Equal(decimal.NewFromInt(4000)))
	assert.True(t, quote.TotalFee.Equal(decimal.NewFromInt(3)), quote.TotalFee.String())
	assert.True(t, quote.QuoteAmountWithFees.Equal(decimal.NewFromInt(388000)), quote.QuoteAmountWithFees.String())
}

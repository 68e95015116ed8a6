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
	"fmt"

	"github.com/jerry-enebeli/remit/model"
)

// ProviderStatus is the state an external provider reports for an operation it owns.
type ProviderStatus string

const (
	ProviderStatusPending ProviderStatus = "PENDING"
	ProviderStatusSuccess ProviderStatus = "SUCCESS"
	ProviderStatusFailed  ProviderStatus = "FAILED"
)

// TransactionVerifier runs the external checks a transaction must pass before money moves,
// such as compliance screening and balance checks.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, txn *model.Transaction) error
}

// FiatPaymentProvider captures the fiat leg. The transaction id is used as idempotency key.
type FiatPaymentProvider interface {
	CapturePayment(ctx context.Context, txn *model.Transaction) (paymentID string, err error)
	// FindPaymentByIdempotencyKey reports a capture previously made with key, if any.
	FindPaymentByIdempotencyKey(ctx context.Context, key string) (paymentID string, found bool, err error)
	GetPaymentStatus(ctx context.Context, paymentID string) (ProviderStatus, error)
}

// TransferResult is the custody provider's view of an internal transfer.
type TransferResult struct {
	Status        ProviderStatus
	TradeID       string
	OnChainTxHash string
	Reason        string
}

// TransferProvider converts the captured funds and moves them towards the destination wallet.
type TransferProvider interface {
	InitiateTransfer(ctx context.Context, txn *model.Transaction) (transferID string, err error)
	GetTransferStatus(ctx context.Context, transferID string) (TransferResult, error)
}

// SettlementProvider reports on-chain settlement of an outgoing transfer.
type SettlementProvider interface {
	GetSettlementStatus(ctx context.Context, txHash string) (ProviderStatus, error)
}

// ConsumerNotifier tells the end user about a terminal transition. Implementations must tolerate
// being called more than once for the same transaction and event.
type ConsumerNotifier interface {
	NotifyTransactionCompleted(ctx context.Context, txn *model.Transaction) error
	NotifyTransactionFailed(ctx context.Context, txn *model.Transaction, reason FailureReason) error
}

// Providers groups the external collaborators the stage processors call.
type Providers struct {
	Verifier   TransactionVerifier
	Fiat       FiatPaymentProvider
	Transfer   TransferProvider
	Settlement SettlementProvider
	Notifier   ConsumerNotifier
}

type ProviderErrorKind string

const (
	// KindValidation marks parameters the provider rejected.
	KindValidation ProviderErrorKind = "validation"
	// KindBusinessRule marks deterministic refusals such as insufficient balance or a sanctioned wallet.
	KindBusinessRule ProviderErrorKind = "business_rule"
	// KindTransient marks failures worth retrying such as timeouts and provider 5xx responses.
	KindTransient ProviderErrorKind = "transient"
)

// ProviderError classifies a failure returned by an external collaborator.
type ProviderError struct {
	Kind   ProviderErrorKind
	Reason string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewValidationError(reason string) *ProviderError {
	return &ProviderError{Kind: KindValidation, Reason: reason}
}

func NewBusinessRuleError(reason string) *ProviderError {
	return &ProviderError{Kind: KindBusinessRule, Reason: reason}
}

func NewTransientError(reason string, err error) *ProviderError {
	return &ProviderError{Kind: KindTransient, Reason: reason, Err: err}
}

// IsRecoverableFailure reports whether err is a deterministic provider refusal. Such failures
// move the transaction to a failed status. Anything else is left to redelivery.
func IsRecoverableFailure(err error) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}
	return providerErr.Kind == KindValidation || providerErr.Kind == KindBusinessRule
}

// exceptionFromError builds the audit entry recorded for a failed stage.
func exceptionFromError(message string, err error) model.TransactionException {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		details := providerErr.Reason
		if providerErr.Err != nil {
			details = fmt.Sprintf("%s: %v", providerErr.Reason, providerErr.Err)
		}
		return model.NewException(message, details)
	}
	return model.NewException(message, err.Error())
}

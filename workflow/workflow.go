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
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/remit/internal/apierror"
	"github.com/jerry-enebeli/remit/model"
)

// Workflow is the per transaction type part of workflow dispatch.
type Workflow interface {
	Type() model.TransactionType
	// PreprocessTransactionParams validates req for the workflow type, rejecting fields the type
	// does not accept, and fills in derived fields such as converted amounts.
	PreprocessTransactionParams(ctx context.Context, req *model.InitiateTransactionRequest) error
	// InitiateWorkflow starts the orchestrator workflow for a persisted transaction.
	InitiateWorkflow(ctx context.Context, txn *model.Transaction, req *model.InitiateTransactionRequest) (Handle, error)
	GetTransactionQuote(ctx context.Context, req model.QuoteRequest) (*model.Quote, error)
}

// Factory picks the Workflow for a transaction type.
type Factory struct {
	workflows map[model.TransactionType]Workflow
}

func NewFactory(executor *Executor, quoter *Quoter) *Factory {
	f := &Factory{workflows: make(map[model.TransactionType]Workflow)}
	f.Register(&walletTransferWorkflow{base: base{executor: executor, typ: model.TypeWalletTransfer}})
	f.Register(&walletWithdrawalWorkflow{base: base{executor: executor, typ: model.TypeWalletWithdrawal}, quoter: quoter})
	f.Register(&walletDepositWorkflow{base: base{executor: executor, typ: model.TypeWalletDeposit}, quoter: quoter})
	f.Register(&payrollWorkflow{base: base{executor: executor, typ: model.TypePayrollDeposit}})
	f.Register(&adjustmentWorkflow{base: base{executor: executor, typ: model.TypeCreditAdjustment}, credit: true})
	f.Register(&adjustmentWorkflow{base: base{executor: executor, typ: model.TypeDebitAdjustment}})
	return f
}

func (f *Factory) Register(w Workflow) {
	f.workflows[w.Type()] = w
}

func (f *Factory) Get(transactionType model.TransactionType) (Workflow, error) {
	w, ok := f.workflows[transactionType]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotSupported, fmt.Sprintf("Transaction type %s is not handled by a workflow", transactionType), nil)
	}
	return w, nil
}

type base struct {
	executor *Executor
	typ      model.TransactionType
}

func (b base) Type() model.TransactionType {
	return b.typ
}

func (b base) GetTransactionQuote(context.Context, model.QuoteRequest) (*model.Quote, error) {
	return nil, apierror.NewAPIError(apierror.ErrNotSupported, fmt.Sprintf("Quotes are not supported for %s workflows", b.typ), nil)
}

// WorkflowID is the orchestrator id of a transaction's workflow.
func WorkflowID(txn *model.Transaction) string {
	return fmt.Sprintf("%s-%s", strings.ToLower(string(txn.Type)), txn.TransactionID)
}

func invalidInput(err error) error {
	return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
}

var (
	positiveAmount = validation.By(func(value interface{}) error {
		amount, _ := value.(decimal.Decimal)
		if !amount.IsPositive() {
			return errors.New("must be greater than zero")
		}
		return nil
	})

	// zeroAmount rejects amounts the caller may not set because they are derived.
	zeroAmount = validation.By(func(value interface{}) error {
		amount, _ := value.(decimal.Decimal)
		if !amount.IsZero() {
			return errors.New("must not be set")
		}
		return nil
	})
)

func withdrawalDetailsRule(value interface{}) error {
	details, _ := value.(*model.WithdrawalDetails)
	if details == nil {
		return nil
	}
	return validation.ValidateStruct(details,
		validation.Field(&details.AccountNumber, validation.Required),
		validation.Field(&details.AccountType, validation.Required),
		validation.Field(&details.BankCode, validation.Required),
		validation.Field(&details.DocumentNumber, validation.Required),
		validation.Field(&details.DocumentType, validation.Required),
	)
}

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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/remit/model"
)

// adjustmentWorkflow books an operator correction on one side of a wallet. Credit adjustments only
// carry the credit leg, debit adjustments only the debit leg. The memo is the recorded reason.
type adjustmentWorkflow struct {
	base
	credit bool
}

func (w *adjustmentWorkflow) PreprocessTransactionParams(_ context.Context, req *model.InitiateTransactionRequest) error {
	var err error
	if w.credit {
		err = validation.ValidateStruct(req,
			validation.Field(&req.CreditConsumerIDOrTag, validation.Required),
			validation.Field(&req.CreditAmount, positiveAmount),
			validation.Field(&req.CreditCurrency, validation.Required),
			validation.Field(&req.DebitConsumerIDOrTag, validation.Empty),
			validation.Field(&req.DebitAmount, zeroAmount),
			validation.Field(&req.DebitCurrency, validation.Empty),
			validation.Field(&req.ExchangeRate, zeroAmount),
			validation.Field(&req.Fee, zeroAmount),
			validation.Field(&req.Memo, validation.Required),
			validation.Field(&req.PayrollID, validation.Empty),
			validation.Field(&req.WithdrawalDetails, validation.Nil),
		)
	} else {
		err = validation.ValidateStruct(req,
			validation.Field(&req.DebitConsumerIDOrTag, validation.Required),
			validation.Field(&req.DebitAmount, positiveAmount),
			validation.Field(&req.DebitCurrency, validation.Required),
			validation.Field(&req.CreditConsumerIDOrTag, validation.Empty),
			validation.Field(&req.CreditAmount, zeroAmount),
			validation.Field(&req.CreditCurrency, validation.Empty),
			validation.Field(&req.ExchangeRate, zeroAmount),
			validation.Field(&req.Fee, zeroAmount),
			validation.Field(&req.Memo, validation.Required),
			validation.Field(&req.PayrollID, validation.Empty),
			validation.Field(&req.WithdrawalDetails, validation.Nil),
		)
	}
	if err != nil {
		return invalidInput(err)
	}

	req.ExchangeRate = decimal.NewFromInt(1)
	return nil
}

func (w *adjustmentWorkflow) InitiateWorkflow(ctx context.Context, txn *model.Transaction, _ *model.InitiateTransactionRequest) (Handle, error) {
	if w.credit {
		return w.executor.ExecuteCreditAdjustmentWorkflow(ctx, txn.TransactionID, WorkflowID(txn), AdjustmentArgs{
			TransactionID: txn.TransactionID,
			ConsumerID:    txn.Credit.PartyID,
			Amount:        txn.Credit.Amount,
			Currency:      txn.Credit.Currency,
			Reason:        txn.Memo,
		})
	}
	return w.executor.ExecuteDebitAdjustmentWorkflow(ctx, txn.TransactionID, WorkflowID(txn), AdjustmentArgs{
		TransactionID: txn.TransactionID,
		ConsumerID:    txn.Debit.PartyID,
		Amount:        txn.Debit.Amount,
		Currency:      txn.Debit.Currency,
		Reason:        txn.Memo,
	})
}

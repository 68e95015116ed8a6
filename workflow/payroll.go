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

// payrollWorkflow pays one employee line of an employer payroll.
type payrollWorkflow struct {
	base
}

func (w *payrollWorkflow) PreprocessTransactionParams(_ context.Context, req *model.InitiateTransactionRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.PayrollID, validation.Required),
		validation.Field(&req.DebitConsumerIDOrTag, validation.Required),
		validation.Field(&req.CreditConsumerIDOrTag, validation.Required),
		validation.Field(&req.DebitAmount, positiveAmount),
		validation.Field(&req.DebitCurrency, validation.Required),
		validation.Field(&req.CreditAmount, zeroAmount),
		validation.Field(&req.CreditCurrency, validation.Empty),
		validation.Field(&req.ExchangeRate, zeroAmount),
		validation.Field(&req.Fee, zeroAmount),
		validation.Field(&req.WithdrawalDetails, validation.Nil),
	)
	if err != nil {
		return invalidInput(err)
	}

	req.CreditAmount = req.DebitAmount
	req.CreditCurrency = req.DebitCurrency
	req.ExchangeRate = decimal.NewFromInt(1)
	return nil
}

func (w *payrollWorkflow) InitiateWorkflow(ctx context.Context, txn *model.Transaction, req *model.InitiateTransactionRequest) (Handle, error) {
	args := PayrollDepositArgs{
		TransactionID: txn.TransactionID,
		EmployerID:    txn.Debit.PartyID,
		EmployeeID:    txn.Credit.PartyID,
		Amount:        txn.Debit.Amount,
		Currency:      txn.Debit.Currency,
	}
	if req != nil {
		args.PayrollID = req.PayrollID
	}
	return w.executor.ExecutePayrollWorkflow(ctx, txn.TransactionID, WorkflowID(txn), args)
}

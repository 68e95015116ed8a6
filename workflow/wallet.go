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

	"github.com/jerry-enebeli/remit/internal/apierror"
	"github.com/jerry-enebeli/remit/model"
)

const (
	withdrawalCurrency = "COP"
	depositCurrency    = "USD"
)

// walletTransferWorkflow moves funds between two wallets in the same currency.
type walletTransferWorkflow struct {
	base
}

func (w *walletTransferWorkflow) PreprocessTransactionParams(_ context.Context, req *model.InitiateTransactionRequest) error {
	if req.DebitConsumerIDOrTag == "" {
		req.DebitConsumerIDOrTag = req.InitiatingConsumerID
	}

	err := validation.ValidateStruct(req,
		validation.Field(&req.DebitConsumerIDOrTag, validation.Required),
		validation.Field(&req.CreditConsumerIDOrTag, validation.Required, validation.NotIn(req.DebitConsumerIDOrTag).Error("must differ from the debit consumer")),
		validation.Field(&req.DebitAmount, positiveAmount),
		validation.Field(&req.DebitCurrency, validation.Required),
		validation.Field(&req.CreditAmount, zeroAmount),
		validation.Field(&req.CreditCurrency, validation.Empty),
		validation.Field(&req.ExchangeRate, zeroAmount),
		validation.Field(&req.Fee, zeroAmount),
		validation.Field(&req.PayrollID, validation.Empty),
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

func (w *walletTransferWorkflow) InitiateWorkflow(ctx context.Context, txn *model.Transaction, _ *model.InitiateTransactionRequest) (Handle, error) {
	return w.executor.ExecuteWalletTransferWorkflow(ctx, txn.TransactionID, WorkflowID(txn), WalletTransferArgs{
		TransactionID:    txn.TransactionID,
		DebitConsumerID:  txn.Debit.PartyID,
		CreditConsumerID: txn.Credit.PartyID,
		Amount:           txn.Debit.Amount,
		Currency:         txn.Debit.Currency,
		Memo:             txn.Memo,
	})
}

// walletWithdrawalWorkflow pays wallet funds out to a bank account in local currency.
type walletWithdrawalWorkflow struct {
	base
	quoter *Quoter
}

func (w *walletWithdrawalWorkflow) PreprocessTransactionParams(ctx context.Context, req *model.InitiateTransactionRequest) error {
	if req.DebitConsumerIDOrTag == "" {
		req.DebitConsumerIDOrTag = req.InitiatingConsumerID
	}
	if req.CreditCurrency == "" {
		req.CreditCurrency = withdrawalCurrency
	}

	err := validation.ValidateStruct(req,
		validation.Field(&req.DebitConsumerIDOrTag, validation.Required),
		validation.Field(&req.CreditConsumerIDOrTag, validation.Empty),
		validation.Field(&req.DebitAmount, positiveAmount),
		validation.Field(&req.DebitCurrency, validation.Required),
		validation.Field(&req.CreditAmount, zeroAmount),
		validation.Field(&req.CreditCurrency, validation.In(withdrawalCurrency)),
		validation.Field(&req.ExchangeRate, zeroAmount),
		validation.Field(&req.Fee, zeroAmount),
		validation.Field(&req.PayrollID, validation.Empty),
		validation.Field(&req.WithdrawalDetails, validation.Required, validation.By(withdrawalDetailsRule)),
	)
	if err != nil {
		return invalidInput(err)
	}

	quote, err := w.quoter.Quote(ctx, model.QuoteRequest{
		Type:            w.typ,
		Amount:          req.DebitAmount,
		Currency:        req.DebitCurrency,
		DesiredCurrency: req.CreditCurrency,
	})
	if err != nil {
		return err
	}

	req.CreditAmount = quote.QuoteAmountWithFees
	req.ExchangeRate = quote.ExchangeRate
	req.Fee = quote.TotalFee
	return nil
}

func (w *walletWithdrawalWorkflow) InitiateWorkflow(ctx context.Context, txn *model.Transaction, req *model.InitiateTransactionRequest) (Handle, error) {
	args := WalletWithdrawalArgs{
		TransactionID:       txn.TransactionID,
		ConsumerID:          txn.Debit.PartyID,
		Amount:              txn.Debit.Amount,
		Currency:            txn.Debit.Currency,
		DestinationAmount:   txn.Credit.Amount,
		DestinationCurrency: txn.Credit.Currency,
		ExchangeRate:        txn.ExchangeRate,
		Fee:                 txn.Fee,
	}
	if req != nil && req.WithdrawalDetails != nil {
		args.WithdrawalDetails = *req.WithdrawalDetails
	}
	return w.executor.ExecuteWalletWithdrawalWorkflow(ctx, txn.TransactionID, WorkflowID(txn), args)
}

func (w *walletWithdrawalWorkflow) GetTransactionQuote(ctx context.Context, req model.QuoteRequest) (*model.Quote, error) {
	if req.DesiredCurrency == "" {
		req.DesiredCurrency = withdrawalCurrency
	}
	if req.DesiredCurrency != withdrawalCurrency {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Withdrawals are only paid out in "+withdrawalCurrency, nil)
	}
	return w.quoter.Quote(ctx, req)
}

// walletDepositWorkflow credits a wallet from a local currency payment.
type walletDepositWorkflow struct {
	base
	quoter *Quoter
}

func (w *walletDepositWorkflow) PreprocessTransactionParams(ctx context.Context, req *model.InitiateTransactionRequest) error {
	if req.CreditConsumerIDOrTag == "" {
		req.CreditConsumerIDOrTag = req.InitiatingConsumerID
	}
	if req.CreditCurrency == "" {
		req.CreditCurrency = depositCurrency
	}

	err := validation.ValidateStruct(req,
		validation.Field(&req.DebitConsumerIDOrTag, validation.Empty),
		validation.Field(&req.CreditConsumerIDOrTag, validation.Required),
		validation.Field(&req.DebitAmount, positiveAmount),
		validation.Field(&req.DebitCurrency, validation.Required),
		validation.Field(&req.CreditAmount, zeroAmount),
		validation.Field(&req.ExchangeRate, zeroAmount),
		validation.Field(&req.Fee, zeroAmount),
		validation.Field(&req.PayrollID, validation.Empty),
		validation.Field(&req.WithdrawalDetails, validation.Nil),
	)
	if err != nil {
		return invalidInput(err)
	}

	quote, err := w.quoter.Quote(ctx, model.QuoteRequest{
		Type:            w.typ,
		Amount:          req.DebitAmount,
		Currency:        req.DebitCurrency,
		DesiredCurrency: req.CreditCurrency,
	})
	if err != nil {
		return err
	}

	req.CreditAmount = quote.QuoteAmountWithFees
	req.ExchangeRate = quote.ExchangeRate
	req.Fee = quote.TotalFee
	return nil
}

func (w *walletDepositWorkflow) InitiateWorkflow(ctx context.Context, txn *model.Transaction, _ *model.InitiateTransactionRequest) (Handle, error) {
	return w.executor.ExecuteWalletDepositWorkflow(ctx, txn.TransactionID, WorkflowID(txn), WalletDepositArgs{
		TransactionID:  txn.TransactionID,
		ConsumerID:     txn.Credit.PartyID,
		Amount:         txn.Debit.Amount,
		Currency:       txn.Debit.Currency,
		CreditAmount:   txn.Credit.Amount,
		CreditCurrency: txn.Credit.Currency,
		ExchangeRate:   txn.ExchangeRate,
		Fee:            txn.Fee,
	})
}

func (w *walletDepositWorkflow) GetTransactionQuote(ctx context.Context, req model.QuoteRequest) (*model.Quote, error) {
	if req.DesiredCurrency == "" {
		req.DesiredCurrency = depositCurrency
	}
	if req.Currency == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "currency is required", nil)
	}
	return w.quoter.Quote(ctx, req)
}

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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/remit/model"
)

type validationStage struct {
	remit *Remit
}

func (s *validationStage) name() string { return "validation" }

func (s *validationStage) preStates() []model.Status {
	return []model.Status{model.StatusPending}
}

func (s *validationStage) run(ctx context.Context, txn *model.Transaction) error {
	if err := validateTransaction(txn); err != nil {
		return s.remit.failOrRetry(ctx, txn, model.StatusValidationFailed, "Transaction validation failed", NewValidationError(err.Error()))
	}

	if verifier := s.remit.providers.Verifier; verifier != nil {
		if err := verifier.VerifyTransaction(ctx, txn); err != nil {
			return s.remit.failOrRetry(ctx, txn, model.StatusValidationFailed, "Transaction verification failed", err)
		}
	}

	return s.remit.advance(ctx, txn, model.StatusValidationPassed, nil)
}

func validateTransaction(txn *model.Transaction) error {
	err := validation.ValidateStruct(txn,
		validation.Field(&txn.Type, validation.Required, validation.In(model.TypeCardWalletPurchase)),
		validation.Field(&txn.PaymentMethodID, validation.Required),
		validation.Field(&txn.DestinationWalletAddress, validation.Required),
		validation.Field(&txn.Debit, validation.By(debitLegRule)),
		validation.Field(&txn.Credit, validation.By(creditLegRule)),
	)
	return err
}

func debitLegRule(value interface{}) error {
	leg, _ := value.(model.Leg)
	return validation.ValidateStruct(&leg,
		validation.Field(&leg.PartyID, validation.Required),
		validation.Field(&leg.Currency, validation.Required, validation.Length(3, 5)),
		validation.Field(&leg.Amount, validation.By(positiveAmount)),
	)
}

func creditLegRule(value interface{}) error {
	leg, _ := value.(model.Leg)
	return validation.ValidateStruct(&leg,
		validation.Field(&leg.PartyID, validation.Required),
		validation.Field(&leg.Currency, validation.Required, validation.Length(3, 5)),
		validation.Field(&leg.Amount, validation.By(nonNegativeAmount)),
	)
}

func positiveAmount(value interface{}) error {
	amount, _ := value.(decimal.Decimal)
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func nonNegativeAmount(value interface{}) error {
	amount, _ := value.(decimal.Decimal)
	if amount.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

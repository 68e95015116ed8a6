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

	"github.com/jerry-enebeli/remit/model"
)

// fiatInitiationStage captures the fiat leg in two phases. The intent is persisted as
// FIAT_INCOMING_INITIATING before the provider is called, so a redelivery after a crash asks the
// provider whether the capture already happened instead of charging twice.
type fiatInitiationStage struct {
	remit *Remit
}

func (s *fiatInitiationStage) name() string { return "fiat_initiation" }

func (s *fiatInitiationStage) preStates() []model.Status {
	return []model.Status{model.StatusValidationPassed, model.StatusFiatIncomingInitiating}
}

func (s *fiatInitiationStage) run(ctx context.Context, txn *model.Transaction) error {
	fiat := s.remit.providers.Fiat
	if fiat == nil {
		return fmt.Errorf("no fiat payment provider configured")
	}

	if txn.Status == model.StatusValidationPassed {
		if err := s.remit.transition(ctx, txn, model.StatusFiatIncomingInitiating, nil); err != nil {
			return err
		}
	} else {
		paymentID, found, err := fiat.FindPaymentByIdempotencyKey(ctx, txn.TransactionID)
		if err != nil {
			return err
		}
		if found {
			logrus.WithFields(logrus.Fields{"transaction_id": txn.TransactionID, "payment_id": paymentID}).
				Info("found capture from an earlier attempt")
			return s.recordPayment(ctx, txn, paymentID)
		}
	}

	paymentID, err := fiat.CapturePayment(ctx, txn)
	if err != nil {
		return s.remit.failOrRetry(ctx, txn, model.StatusFiatIncomingFailed, "Fiat payment capture failed", err)
	}
	return s.recordPayment(ctx, txn, paymentID)
}

func (s *fiatInitiationStage) recordPayment(ctx context.Context, txn *model.Transaction, paymentID string) error {
	txn.References.PaymentID = paymentID
	if err := s.remit.datasource.UpdateTransaction(ctx, txn); err != nil {
		return err
	}
	return s.remit.advance(ctx, txn, model.StatusFiatIncomingInitiated, nil)
}

// fiatStatusStage confirms the capture with the payment provider.
type fiatStatusStage struct {
	remit *Remit
}

func (s *fiatStatusStage) name() string { return "fiat_status" }

func (s *fiatStatusStage) preStates() []model.Status {
	return []model.Status{model.StatusFiatIncomingInitiated}
}

func (s *fiatStatusStage) run(ctx context.Context, txn *model.Transaction) error {
	fiat := s.remit.providers.Fiat
	if fiat == nil {
		return fmt.Errorf("no fiat payment provider configured")
	}
	if txn.References.PaymentID == "" {
		return fmt.Errorf("transaction %s has no payment reference", txn.TransactionID)
	}

	status, err := fiat.GetPaymentStatus(ctx, txn.References.PaymentID)
	if err != nil {
		return s.remit.failOrRetry(ctx, txn, model.StatusFiatIncomingFailed, "Fiat payment status check failed", err)
	}

	switch status {
	case ProviderStatusSuccess:
		return s.remit.advance(ctx, txn, model.StatusFiatIncomingCompleted, nil)
	case ProviderStatusFailed:
		exception := model.NewException("Fiat payment failed", fmt.Sprintf("payment %s was declined by the provider", txn.References.PaymentID))
		return s.remit.advance(ctx, txn, model.StatusFiatIncomingFailed, &exception)
	default:
		logrus.WithField("transaction_id", txn.TransactionID).Debug("fiat payment still pending")
		return nil
	}
}

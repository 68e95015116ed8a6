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

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/remit/model"
)

// FailureReason is the user-facing category of a failed transaction.
type FailureReason string

const (
	FailureReasonValidation       FailureReason = "VALIDATION_FAILURE"
	FailureReasonPayment          FailureReason = "PAYMENT_FAILURE"
	FailureReasonCryptoSettlement FailureReason = "CRYPTO_SETTLEMENT_FAILURE"
)

// Message is the text shown to the consumer.
func (r FailureReason) Message() string {
	switch r {
	case FailureReasonValidation:
		return "Your transaction could not be validated."
	case FailureReasonPayment:
		return "Your payment could not be completed."
	case FailureReasonCryptoSettlement:
		return "Your funds could not be delivered to the destination wallet."
	default:
		return "Your transaction could not be completed."
	}
}

// FailureReasonFor picks the failure reason from the failed status a transaction reached.
func FailureReasonFor(status model.Status) FailureReason {
	switch status {
	case model.StatusValidationFailed:
		return FailureReasonValidation
	case model.StatusFiatIncomingFailed:
		return FailureReasonPayment
	default:
		return FailureReasonCryptoSettlement
	}
}

// failureStage converges every failed status on FAILED and tells the consumer.
type failureStage struct {
	remit *Remit
}

func (s *failureStage) name() string { return "failure" }

func (s *failureStage) preStates() []model.Status {
	return []model.Status{model.StatusValidationFailed, model.StatusFiatIncomingFailed, model.StatusCryptoOutgoingFailed}
}

func (s *failureStage) run(ctx context.Context, txn *model.Transaction) error {
	reason := FailureReasonFor(txn.Status)

	if notifier := s.remit.providers.Notifier; notifier != nil {
		if err := notifier.NotifyTransactionFailed(ctx, txn, reason); err != nil {
			return err
		}
	}

	exception := model.NewException(string(reason), reason.Message())
	if err := s.remit.transition(ctx, txn, model.StatusFailed, &exception); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"transaction_id": txn.TransactionID, "reason": reason}).Info("transaction failed")
	return nil
}

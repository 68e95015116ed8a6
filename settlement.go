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

// settlementStage waits for the outgoing transfer to settle on chain and completes the transaction.
type settlementStage struct {
	remit *Remit
}

func (s *settlementStage) name() string { return "on_chain_settlement" }

func (s *settlementStage) preStates() []model.Status {
	return []model.Status{model.StatusCryptoOutgoingCompleted}
}

func (s *settlementStage) run(ctx context.Context, txn *model.Transaction) error {
	settlement := s.remit.providers.Settlement
	if settlement == nil {
		return fmt.Errorf("no settlement provider configured")
	}
	if txn.References.OnChainTxHash == "" {
		return fmt.Errorf("transaction %s has no on-chain transaction hash", txn.TransactionID)
	}

	status, err := settlement.GetSettlementStatus(ctx, txn.References.OnChainTxHash)
	if err != nil {
		return s.remit.failOrRetry(ctx, txn, model.StatusCryptoOutgoingFailed, "On-chain settlement check failed", err)
	}

	switch status {
	case ProviderStatusSuccess:
		// the notifier dedupes per transaction, so a crash between notify and the status write
		// does not notify twice on redelivery
		if notifier := s.remit.providers.Notifier; notifier != nil {
			if err := notifier.NotifyTransactionCompleted(ctx, txn); err != nil {
				return err
			}
		}
		return s.remit.transition(ctx, txn, model.StatusCompleted, nil)
	case ProviderStatusFailed:
		exception := model.NewException("On-chain settlement failed", fmt.Sprintf("transaction hash %s did not settle", txn.References.OnChainTxHash))
		return s.remit.advance(ctx, txn, model.StatusCryptoOutgoingFailed, &exception)
	default:
		logrus.WithField("transaction_id", txn.TransactionID).Debug("on-chain settlement still pending")
		return nil
	}
}

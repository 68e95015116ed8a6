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

// transferInitiationStage converts the captured funds and starts the internal transfer towards the
// destination wallet. The custody provider deduplicates on the transaction id.
type transferInitiationStage struct {
	remit *Remit
}

func (s *transferInitiationStage) name() string { return "transfer_initiation" }

func (s *transferInitiationStage) preStates() []model.Status {
	return []model.Status{model.StatusFiatIncomingCompleted}
}

func (s *transferInitiationStage) run(ctx context.Context, txn *model.Transaction) error {
	transfers := s.remit.providers.Transfer
	if transfers == nil {
		return fmt.Errorf("no transfer provider configured")
	}

	transferID, err := transfers.InitiateTransfer(ctx, txn)
	if err != nil {
		return s.remit.failOrRetry(ctx, txn, model.StatusCryptoOutgoingFailed, "Internal transfer initiation failed", err)
	}

	txn.References.TransferID = transferID
	if err := s.remit.datasource.UpdateTransaction(ctx, txn); err != nil {
		return err
	}
	return s.remit.advance(ctx, txn, model.StatusInternalTransferPending, nil)
}

// transferStatusStage waits for the internal transfer to be broadcast on chain.
type transferStatusStage struct {
	remit *Remit
}

func (s *transferStatusStage) name() string { return "internal_transfer_status" }

func (s *transferStatusStage) preStates() []model.Status {
	return []model.Status{model.StatusInternalTransferPending}
}

func (s *transferStatusStage) run(ctx context.Context, txn *model.Transaction) error {
	transfers := s.remit.providers.Transfer
	if transfers == nil {
		return fmt.Errorf("no transfer provider configured")
	}
	if txn.References.TransferID == "" {
		return fmt.Errorf("transaction %s has no transfer reference", txn.TransactionID)
	}

	result, err := transfers.GetTransferStatus(ctx, txn.References.TransferID)
	if err != nil {
		return s.remit.failOrRetry(ctx, txn, model.StatusCryptoOutgoingFailed, "Internal transfer status check failed", err)
	}

	switch result.Status {
	case ProviderStatusSuccess:
		txn.References.TradeID = result.TradeID
		txn.References.OnChainTxHash = result.OnChainTxHash
		if err := s.remit.datasource.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		return s.remit.advance(ctx, txn, model.StatusCryptoOutgoingCompleted, nil)
	case ProviderStatusFailed:
		reason := result.Reason
		if reason == "" {
			reason = fmt.Sprintf("transfer %s was rejected by the provider", txn.References.TransferID)
		}
		exception := model.NewException("Internal transfer failed", reason)
		return s.remit.advance(ctx, txn, model.StatusCryptoOutgoingFailed, &exception)
	default:
		logrus.WithField("transaction_id", txn.TransactionID).Debug("internal transfer still pending")
		return nil
	}
}

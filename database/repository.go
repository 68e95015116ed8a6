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

package database

import (
	"context"
	"time"

	"github.com/jerry-enebeli/remit/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	transaction
}

// transaction defines methods for handling transactions.
type transaction interface {
	// CreateTransaction persists a new transaction. Identity and timestamps are filled in when empty.
	CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	// UpdateTransaction writes the non-status fields (provider references, amounts, metadata).
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error
	// UpdateTransactionStatus moves the status, stamps lastStatusUpdateTimestamp and, when exception
	// is non nil, appends it to the exception trail.
	UpdateTransactionStatus(ctx context.Context, id string, status model.Status, exception *model.TransactionException) error
	// UpdateLastProcessingTimestamp marks the transaction as picked up by a worker.
	UpdateLastProcessingTimestamp(ctx context.Context, id string) error
	// GetValidTransactionsToProcess returns transactions in status not processed since maxUpdateTime
	// whose status changed at or after minStatusUpdateTime.
	GetValidTransactionsToProcess(ctx context.Context, maxUpdateTime, minStatusUpdateTime time.Time, status model.Status, limit int) ([]*model.Transaction, error)
	// GetStaleTransactionsToProcess returns transactions in status not processed since maxUpdateTime
	// whose status has not changed since before minStatusUpdateTime.
	GetStaleTransactionsToProcess(ctx context.Context, maxUpdateTime, minStatusUpdateTime time.Time, status model.Status, limit int) ([]*model.Transaction, error)
}

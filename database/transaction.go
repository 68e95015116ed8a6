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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jerry-enebeli/remit/internal/apierror"
	"github.com/jerry-enebeli/remit/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const transactionColumns = `transaction_id, transaction_ref, type, status,
	COALESCE(debit_party_id, ''), debit_amount, COALESCE(debit_currency, ''),
	COALESCE(credit_party_id, ''), credit_amount, COALESCE(credit_currency, ''),
	exchange_rate, fee, COALESCE(payment_method_id, ''), COALESCE(destination_wallet_address, ''), COALESCE(memo, ''),
	provider_references, last_processing_timestamp, last_status_update_timestamp, transaction_exceptions,
	created_at, updated_at, meta_data`

var tracer = otel.Tracer("remit.database")

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var referencesJSON, exceptionsJSON, metaDataJSON []byte

	err := row.Scan(
		&txn.TransactionID, &txn.TransactionRef, &txn.Type, &txn.Status,
		&txn.Debit.PartyID, &txn.Debit.Amount, &txn.Debit.Currency,
		&txn.Credit.PartyID, &txn.Credit.Amount, &txn.Credit.Currency,
		&txn.ExchangeRate, &txn.Fee, &txn.PaymentMethodID, &txn.DestinationWalletAddress, &txn.Memo,
		&referencesJSON, &txn.LastProcessingTimestamp, &txn.LastStatusUpdateTimestamp, &exceptionsJSON,
		&txn.CreatedAt, &txn.UpdatedAt, &metaDataJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(referencesJSON) > 0 {
		if err := json.Unmarshal(referencesJSON, &txn.References); err != nil {
			return nil, fmt.Errorf("unmarshal provider references: %w", err)
		}
	}
	if len(exceptionsJSON) > 0 {
		if err := json.Unmarshal(exceptionsJSON, &txn.TransactionExceptions); err != nil {
			return nil, fmt.Errorf("unmarshal transaction exceptions: %w", err)
		}
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return txn, nil
}

func (d Datasource) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Saving transaction to db")
	defer span.End()

	now := time.Now().UTC()
	if txn.TransactionID == "" {
		txn.TransactionID = model.GenerateUUIDWithSuffix("txn")
	}
	if txn.TransactionRef == "" {
		txn.TransactionRef = model.GenerateUUIDWithSuffix("ref")
	}
	if txn.Status == "" {
		txn.Status = model.StatusPending
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	if txn.LastProcessingTimestamp.IsZero() {
		// never picked up, so the first poller pass sees it as past any cooldown
		txn.LastProcessingTimestamp = time.Unix(0, 0).UTC()
	}
	txn.UpdatedAt = now
	txn.LastStatusUpdateTimestamp = now
	if txn.TransactionExceptions == nil {
		txn.TransactionExceptions = []model.TransactionException{}
	}
	span.SetAttributes(attribute.String("transaction.id", txn.TransactionID))

	referencesJSON, err := json.Marshal(txn.References)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal provider references", err)
	}
	exceptionsJSON, err := json.Marshal(txn.TransactionExceptions)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal transaction exceptions", err)
	}
	metaDataJSON, err := json.Marshal(txn.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO remit.transactions(
			transaction_id, transaction_ref, type, status,
			debit_party_id, debit_amount, debit_currency,
			credit_party_id, credit_amount, credit_currency,
			exchange_rate, fee, payment_method_id, destination_wallet_address, memo,
			provider_references, last_processing_timestamp, last_status_update_timestamp, transaction_exceptions,
			created_at, updated_at, meta_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		txn.TransactionID, txn.TransactionRef, txn.Type, txn.Status,
		txn.Debit.PartyID, txn.Debit.Amount, txn.Debit.Currency,
		txn.Credit.PartyID, txn.Credit.Amount, txn.Credit.Currency,
		txn.ExchangeRate, txn.Fee, txn.PaymentMethodID, txn.DestinationWalletAddress, txn.Memo,
		referencesJSON, txn.LastProcessingTimestamp, txn.LastStatusUpdateTimestamp, exceptionsJSON,
		txn.CreatedAt, txn.UpdatedAt, metaDataJSON,
	)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}

	return txn, nil
}

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Fetching transaction from db")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	row := d.Conn.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM remit.transactions WHERE transaction_id = $1`, id)

	txn, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), nil)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

func (d Datasource) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	ctx, span := tracer.Start(ctx, "Updating transaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", txn.TransactionID))

	referencesJSON, err := json.Marshal(txn.References)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal provider references", err)
	}
	metaDataJSON, err := json.Marshal(txn.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE remit.transactions
		SET debit_amount = $2, credit_amount = $3, exchange_rate = $4, fee = $5,
			payment_method_id = $6, destination_wallet_address = $7, memo = $8,
			provider_references = $9, meta_data = $10, updated_at = NOW()
		WHERE transaction_id = $1`,
		txn.TransactionID, txn.Debit.Amount, txn.Credit.Amount, txn.ExchangeRate, txn.Fee,
		txn.PaymentMethodID, txn.DestinationWalletAddress, txn.Memo,
		referencesJSON, metaDataJSON,
	)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transaction", err)
	}
	return expectOneRow(result, txn.TransactionID)
}

func (d Datasource) UpdateTransactionStatus(ctx context.Context, id string, status model.Status, exception *model.TransactionException) error {
	ctx, span := tracer.Start(ctx, "Updating transaction status")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id), attribute.String("transaction.status", string(status)))

	// nil leaves the trail untouched; otherwise a one element array is appended with ||
	var exceptionJSON sql.NullString
	if exception != nil {
		encoded, err := json.Marshal([]model.TransactionException{*exception})
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal transaction exception", err)
		}
		exceptionJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE remit.transactions
		SET status = $2,
			last_status_update_timestamp = NOW(),
			updated_at = NOW(),
			transaction_exceptions = CASE WHEN $3::jsonb IS NULL THEN transaction_exceptions ELSE transaction_exceptions || $3::jsonb END
		WHERE transaction_id = $1`,
		id, status, exceptionJSON,
	)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transaction status", err)
	}
	return expectOneRow(result, id)
}

func (d Datasource) UpdateLastProcessingTimestamp(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Stamping transaction processing time")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE remit.transactions
		SET last_processing_timestamp = NOW()
		WHERE transaction_id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update last processing timestamp", err)
	}
	return expectOneRow(result, id)
}

func (d Datasource) GetValidTransactionsToProcess(ctx context.Context, maxUpdateTime, minStatusUpdateTime time.Time, status model.Status, limit int) ([]*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Fetching valid transactions to process")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.status", string(status)))

	return d.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM remit.transactions
		WHERE status = $1
			AND last_processing_timestamp <= $2
			AND last_status_update_timestamp >= $3
		ORDER BY last_processing_timestamp ASC
		LIMIT $4`,
		status, maxUpdateTime, minStatusUpdateTime, limit,
	)
}

func (d Datasource) GetStaleTransactionsToProcess(ctx context.Context, maxUpdateTime, minStatusUpdateTime time.Time, status model.Status, limit int) ([]*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Fetching stale transactions")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.status", string(status)))

	return d.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM remit.transactions
		WHERE status = $1
			AND last_processing_timestamp <= $2
			AND last_status_update_timestamp < $3
		ORDER BY last_status_update_timestamp ASC
		LIMIT $4`,
		status, maxUpdateTime, minStatusUpdateTime, limit,
	)
}

func (d Datasource) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []*model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating transactions", err)
	}
	return transactions, nil
}

func expectOneRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), nil)
	}
	return nil
}

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
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/jerry-enebeli/remit/internal/apierror"
	"github.com/jerry-enebeli/remit/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transactionColumnNames = []string{
	"transaction_id", "transaction_ref", "type", "status",
	"debit_party_id", "debit_amount", "debit_currency",
	"credit_party_id", "credit_amount", "credit_currency",
	"exchange_rate", "fee", "payment_method_id", "destination_wallet_address", "memo",
	"provider_references", "last_processing_timestamp", "last_status_update_timestamp", "transaction_exceptions",
	"created_at", "updated_at", "meta_data",
}

func transactionRow(id string, status model.Status, exceptions []model.TransactionException) []driver.Value {
	now := time.Now().UTC()
	exceptionsJSON, _ := json.Marshal(exceptions)
	return []driver.Value{
		id, "ref_" + id, string(model.TypeCardWalletPurchase), string(status),
		gofakeit.UUID(), "100.50", "USD",
		gofakeit.UUID(), "0.00102", "BTC",
		"0.0000101", "1.5", "pm_1", "bc1qexample", "",
		[]byte(`{"payment_id":"pay_1"}`), now.Add(-time.Minute), now.Add(-2 * time.Minute), exceptionsJSON,
		now.Add(-time.Hour), now, []byte(`{"channel":"app"}`),
	}
}

func TestCreateTransaction_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	txn := &model.Transaction{
		Type:   model.TypeCardWalletPurchase,
		Debit:  model.Leg{PartyID: "consumer_1", Amount: decimal.RequireFromString("100"), Currency: "USD"},
		Credit: model.Leg{PartyID: "consumer_1", Amount: decimal.RequireFromString("0.001"), Currency: "BTC"},
	}

	mock.ExpectExec("INSERT INTO remit.transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := ds.CreateTransaction(context.Background(), txn)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TransactionID)
	assert.NotEmpty(t, result.TransactionRef)
	assert.Equal(t, model.StatusPending, result.Status)
	assert.Equal(t, time.Unix(0, 0).UTC(), result.LastProcessingTimestamp)
	assert.False(t, result.LastStatusUpdateTimestamp.IsZero())
	assert.Empty(t, result.TransactionExceptions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransaction_Failure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectExec("INSERT INTO remit.transactions").WillReturnError(errors.New("insert failed"))

	_, err = ds.CreateTransaction(context.Background(), &model.Transaction{Type: model.TypeCardWalletPurchase})
	assert.True(t, apierror.HasCode(err, apierror.ErrInternalServer))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransaction_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	exceptions := []model.TransactionException{{Message: "card declined", Details: "insufficient funds"}}
	rows := sqlmock.NewRows(transactionColumnNames).AddRow(transactionRow("txn_1", model.StatusFiatIncomingFailed, exceptions)...)

	mock.ExpectQuery(regexp.QuoteMeta("FROM remit.transactions WHERE transaction_id = $1")).
		WithArgs("txn_1").
		WillReturnRows(rows)

	txn, err := ds.GetTransaction(context.Background(), "txn_1")
	require.NoError(t, err)
	assert.Equal(t, "txn_1", txn.TransactionID)
	assert.Equal(t, model.StatusFiatIncomingFailed, txn.Status)
	assert.True(t, decimal.RequireFromString("100.50").Equal(txn.Debit.Amount))
	assert.Equal(t, "pay_1", txn.References.PaymentID)
	require.Len(t, txn.TransactionExceptions, 1)
	assert.Equal(t, "card declined", txn.TransactionExceptions[0].Message)
	assert.Equal(t, "app", txn.MetaData["channel"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransaction_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectQuery(regexp.QuoteMeta("FROM remit.transactions WHERE transaction_id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(transactionColumnNames))

	_, err = ds.GetTransaction(context.Background(), "missing")
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransactionStatus_AppendsException(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	exception := model.NewException("Payment failed", "card declined")
	expected, _ := json.Marshal([]model.TransactionException{exception})

	mock.ExpectExec(regexp.QuoteMeta("transaction_exceptions || $3::jsonb")).
		WithArgs("txn_1", "FAILED", string(expected)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateTransactionStatus(context.Background(), "txn_1", model.StatusFailed, &exception)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransactionStatus_WithoutException(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE remit.transactions")).
		WithArgs("txn_1", "VALIDATION_PASSED", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateTransactionStatus(context.Background(), "txn_1", model.StatusValidationPassed, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransactionStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE remit.transactions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateTransactionStatus(context.Background(), "missing", model.StatusFailed, nil)
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}

func TestUpdateLastProcessingTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectExec(regexp.QuoteMeta("SET last_processing_timestamp = NOW()")).
		WithArgs("txn_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.UpdateLastProcessingTimestamp(context.Background(), "txn_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	txn := &model.Transaction{TransactionID: "txn_1", References: model.ProviderReferences{PaymentID: "pay_1"}}

	mock.ExpectExec(regexp.QuoteMeta("SET debit_amount = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.UpdateTransaction(context.Background(), txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetValidTransactionsToProcess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	maxUpdate := time.Now().Add(-10 * time.Second)
	minStatusUpdate := time.Now().Add(-10 * time.Minute)

	rows := sqlmock.NewRows(transactionColumnNames).
		AddRow(transactionRow("txn_1", model.StatusPending, nil)...).
		AddRow(transactionRow("txn_2", model.StatusPending, nil)...)

	mock.ExpectQuery(regexp.QuoteMeta("AND last_status_update_timestamp >= $3")).
		WithArgs("PENDING", maxUpdate, minStatusUpdate, 50).
		WillReturnRows(rows)

	txns, err := ds.GetValidTransactionsToProcess(context.Background(), maxUpdate, minStatusUpdate, model.StatusPending, 50)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "txn_1", txns[0].TransactionID)
	assert.Equal(t, "txn_2", txns[1].TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStaleTransactionsToProcess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	maxUpdate := time.Now().Add(-time.Minute)
	minStatusUpdate := time.Now().Add(-30 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("AND last_status_update_timestamp < $3")).
		WithArgs("FIAT_INCOMING_INITIATING", maxUpdate, minStatusUpdate, 10).
		WillReturnRows(sqlmock.NewRows(transactionColumnNames).AddRow(transactionRow("txn_9", model.StatusFiatIncomingInitiating, nil)...))

	txns, err := ds.GetStaleTransactionsToProcess(context.Background(), maxUpdate, minStatusUpdate, model.StatusFiatIncomingInitiating, 10)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, model.StatusFiatIncomingInitiating, txns[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetValidTransactionsToProcess_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err = ds.GetValidTransactionsToProcess(context.Background(), time.Now(), time.Now(), model.StatusPending, 10)
	assert.True(t, apierror.HasCode(err, apierror.ErrInternalServer))
}

package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType decides whether a transaction runs through the queue pipeline or is handed
// to the workflow orchestrator.
type TransactionType string

const (
	TypeCardWalletPurchase TransactionType = "CARD_WALLET_PURCHASE"
	TypeWalletTransfer     TransactionType = "WALLET_TRANSFER"
	TypeWalletWithdrawal   TransactionType = "WALLET_WITHDRAWAL"
	TypeWalletDeposit      TransactionType = "WALLET_DEPOSIT"
	TypePayrollDeposit     TransactionType = "PAYROLL_DEPOSIT"
	TypeCreditAdjustment   TransactionType = "CREDIT_ADJUSTMENT"
	TypeDebitAdjustment    TransactionType = "DEBIT_ADJUSTMENT"
)

// IsWorkflowType reports whether the type is dispatched to the workflow orchestrator.
func (t TransactionType) IsWorkflowType() bool {
	return t != TypeCardWalletPurchase
}

// Leg is one side of a transaction.
type Leg struct {
	PartyID  string          `json:"party_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

// ProviderReferences records the ids external providers handed back while the transaction was in flight.
type ProviderReferences struct {
	PaymentID     string `json:"payment_id,omitempty"`
	TradeID       string `json:"trade_id,omitempty"`
	TransferID    string `json:"transfer_id,omitempty"`
	OnChainTxHash string `json:"on_chain_tx_hash,omitempty"`
	WorkflowID    string `json:"workflow_id,omitempty"`
	WorkflowRunID string `json:"workflow_run_id,omitempty"`
}

// TransactionException is one entry of the append-only failure audit trail.
type TransactionException struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

type Transaction struct {
	ID                        int64                  `json:"-"`
	TransactionID             string                 `json:"id"`
	TransactionRef            string                 `json:"transaction_ref"`
	Type                      TransactionType        `json:"type"`
	Status                    Status                 `json:"status"`
	Debit                     Leg                    `json:"debit"`
	Credit                    Leg                    `json:"credit"`
	ExchangeRate              decimal.Decimal        `json:"exchange_rate"`
	Fee                       decimal.Decimal        `json:"fee"`
	PaymentMethodID           string                 `json:"payment_method_id,omitempty"`
	DestinationWalletAddress  string                 `json:"destination_wallet_address,omitempty"`
	Memo                      string                 `json:"memo,omitempty"`
	References                ProviderReferences     `json:"provider_references"`
	LastProcessingTimestamp   time.Time              `json:"last_processing_timestamp"`
	LastStatusUpdateTimestamp time.Time              `json:"last_status_update_timestamp"`
	TransactionExceptions     []TransactionException `json:"transaction_exceptions"`
	CreatedAt                 time.Time              `json:"created_at"`
	UpdatedAt                 time.Time              `json:"updated_at"`
	MetaData                  map[string]interface{} `json:"meta_data,omitempty"`
}

// NewException builds an exception entry stamped with the current time.
func NewException(message, details string) TransactionException {
	return TransactionException{
		Timestamp: time.Now().UTC(),
		Message:   message,
		Details:   details,
	}
}

// AppendException adds an entry to the audit trail. Existing entries are never rewritten.
func (transaction *Transaction) AppendException(exception TransactionException) {
	transaction.TransactionExceptions = append(transaction.TransactionExceptions, exception)
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}

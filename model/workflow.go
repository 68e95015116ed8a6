package model

import "github.com/shopspring/decimal"

// WithdrawalDetails identifies the bank account a wallet withdrawal pays out to.
type WithdrawalDetails struct {
	AccountNumber  string `json:"account_number"`
	AccountType    string `json:"account_type"`
	BankCode       string `json:"bank_code"`
	DocumentNumber string `json:"document_number"`
	DocumentType   string `json:"document_type"`
}

// InitiateTransactionRequest is what an API-facing caller hands over to start a workflow-backed
// transaction. Fields that do not apply to a type must be left empty; derived fields are filled in
// during preprocessing.
type InitiateTransactionRequest struct {
	Type                  TransactionType    `json:"type"`
	InitiatingConsumerID  string             `json:"-"`
	DebitConsumerIDOrTag  string             `json:"debit_consumer_id_or_tag,omitempty"`
	CreditConsumerIDOrTag string             `json:"credit_consumer_id_or_tag,omitempty"`
	DebitAmount           decimal.Decimal    `json:"debit_amount"`
	DebitCurrency         string             `json:"debit_currency,omitempty"`
	CreditAmount          decimal.Decimal    `json:"credit_amount"`
	CreditCurrency        string             `json:"credit_currency,omitempty"`
	ExchangeRate          decimal.Decimal    `json:"exchange_rate"`
	Fee                   decimal.Decimal    `json:"fee"`
	Memo                  string             `json:"memo,omitempty"`
	PayrollID             string             `json:"payroll_id,omitempty"`
	WithdrawalDetails     *WithdrawalDetails `json:"withdrawal_details,omitempty"`
}

// ToTransaction builds the persisted aggregate for a preprocessed request.
func (r *InitiateTransactionRequest) ToTransaction() *Transaction {
	return &Transaction{
		TransactionRef: GenerateUUIDWithSuffix("ref"),
		Type:           r.Type,
		Debit:          Leg{PartyID: r.DebitConsumerIDOrTag, Amount: r.DebitAmount, Currency: r.DebitCurrency},
		Credit:         Leg{PartyID: r.CreditConsumerIDOrTag, Amount: r.CreditAmount, Currency: r.CreditCurrency},
		ExchangeRate:   r.ExchangeRate,
		Fee:            r.Fee,
		Memo:           r.Memo,
		MetaData:       map[string]interface{}{},
	}
}

type QuoteRequest struct {
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	DesiredCurrency string          `json:"desired_currency"`
}

type Quote struct {
	QuoteAmount         decimal.Decimal `json:"quote_amount"`
	QuoteAmountWithFees decimal.Decimal `json:"quote_amount_with_fees"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	ProcessingFee       decimal.Decimal `json:"processing_fee"`
	PercentageFee       decimal.Decimal `json:"percentage_fee"`
	TotalFee            decimal.Decimal `json:"total_fee"`
}

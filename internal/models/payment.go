package models

import "time"

type PaymentState string

const (
	StatePending PaymentState = "pending"
	StateSuccess PaymentState = "success"
	StateFailed  PaymentState = "failed"
)

type Payment struct {
	ID                  string       `json:"id"`
	SourceUser          *int64       `json:"source_user"`
	SourceAccount       string       `json:"source_account"`
	SourceName          string       `json:"source_name,omitempty"`
	SourceImageURL      string       `json:"source_image_url,omitempty"`
	SourceAmount        string       `json:"source_amount"`
	DestinationUser     *int64       `json:"destination_user"`
	DestinationAccount  string       `json:"destination_account"`
	DestinationAmount   string       `json:"destination_amount"`
	DestinationName     string       `json:"destination_name,omitempty"`
	DestinationImageURL string       `json:"destination_image_url,omitempty"`
	Message             *string      `json:"message"`
	Transfer            string       `json:"transfer"`
	ExecutionCondition  string       `json:"execution_condition"`
	State               PaymentState `json:"state"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
	CompletedAt         *time.Time   `json:"completed_at"`
}

// Destination is a resolved payee. It is never persisted.
type Destination struct {
	AccountURI   string `json:"account_uri"`
	Name         string `json:"name"`
	ImageURL     string `json:"image_url"`
	CurrencyCode string `json:"currency_code,omitempty"`
	Local        bool   `json:"local"`

	// set for local destinations only
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type Quote struct {
	SourceAmount      string `json:"sourceAmount"`
	DestinationAmount string `json:"destinationAmount"`
}

type QuoteRequest struct {
	Destination       string `json:"destination" binding:"required"`
	SourceAmount      string `json:"sourceAmount"`
	DestinationAmount string `json:"destinationAmount"`
}

type PayRequest struct {
	ID                string `json:"-"`
	Destination       string `json:"destination" binding:"required"`
	SourceAmount      string `json:"sourceAmount" binding:"required"`
	DestinationAmount string `json:"destinationAmount" binding:"required"`
	Message           string `json:"message"`
}

// SenderIdentity is supplied, unauthenticated, by the paying wallet.
type SenderIdentity struct {
	Account  string `json:"sender_identifier"`
	Name     string `json:"sender_name"`
	ImageURL string `json:"sender_image_url"`
}

type ReceiverRequest struct {
	SenderIdentity
	Amount string `json:"amount" binding:"required"`
	Memo   string `json:"memo"`
}

type ReceiverParams struct {
	Address   string    `json:"address"`
	Amount    string    `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
	Condition string    `json:"condition"`
}

// Payee is what this wallet advertises for one of its users to remote resolvers.
type Payee struct {
	Type           string `json:"type"`
	Account        string `json:"account"`
	CurrencyCode   string `json:"currency_code"`
	CurrencySymbol string `json:"currency_symbol"`
	Name           string `json:"name"`
	ImageURL       string `json:"image_url"`
}

type PaymentPage struct {
	List       []Payment `json:"list"`
	TotalPages int       `json:"totalPages"`
}

type PaymentStats struct {
	SentCount       int    `json:"sent_count"`
	SentAmount      string `json:"sent_amount"`
	ReceivedCount   int    `json:"received_count"`
	ReceivedAmount  string `json:"received_amount"`
	PendingReceived int    `json:"pending_received"`
}

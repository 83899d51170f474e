package transaction

import "encoding/json"

// Status is the gateway-assigned transaction state. The set is open: the
// gateway may introduce new values at any time, so unrecognized statuses are
// carried through as-is and treated as non-terminal.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusFailed     Status = "FAILED"
	StatusChargeback Status = "CHARGEBACK"
)

// Authorized reports whether the status is the one state after which the
// checkout flow stops refreshing.
func (s Status) Authorized() bool {
	return s == StatusAuthorized
}

// Customer identifies the payer as the gateway expects it. Document and
// DocumentType travel together: both set, or both absent.
type Customer struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Document     string `json:"document,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

// Item is one order line in the gateway schema. IDs are positional
// (item_1..item_N), assigned by the request builder.
type Item struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	IsPhysical  bool    `json:"is_physical"`
}

// Request is the normalized payload submitted to the gateway.
type Request struct {
	ExternalID    string   `json:"external_id"`
	TotalAmount   float64  `json:"total_amount"`
	PaymentMethod string   `json:"payment_method"`
	WebhookURL    string   `json:"webhook_url"`
	IP            string   `json:"ip"`
	Customer      Customer `json:"customer"`
	Items         []Item   `json:"items"`
}

// Pix carries the copy-paste payload. It is opaque to this service and is
// the source of truth for QR rendering, so it must never be rewritten.
type Pix struct {
	Payload string `json:"payload"`
}

// Transaction mirrors the gateway's representation of a created transaction.
// It is created once by the gateway and only observed afterwards; the
// service never mutates it.
//
// Raw holds the exact response body the gateway returned. Handlers that
// proxy gateway responses write Raw instead of re-marshalling the struct,
// so fields this service does not model survive the round trip.
type Transaction struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"external_id"`
	Status        Status    `json:"status"`
	TotalValue    float64   `json:"total_value"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Pix           *Pix      `json:"pix,omitempty"`
	Customer      *Customer `json:"customer,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// PixPayload returns the copy-paste code, or "" when the gateway did not
// attach one.
func (t *Transaction) PixPayload() string {
	if t.Pix == nil {
		return ""
	}
	return t.Pix.Payload
}

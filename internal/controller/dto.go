package controller

import "encoding/json"

// ErrorResponse is the storefront-facing error shape. Details carries the
// gateway's raw error payload when one exists.
type ErrorResponse struct {
	HasError bool            `json:"hasError"`
	Message  string          `json:"message"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// WebhookAck is the unconditional success acknowledgment.
type WebhookAck struct {
	Received bool `json:"received"`
}

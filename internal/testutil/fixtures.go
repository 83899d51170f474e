package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/burgl/checkout/internal/domain/transaction"
)

// NewTestTransaction builds a gateway transaction with a PIX payload and a
// Raw body consistent with the struct fields.
func NewTestTransaction(id string, status transaction.Status) *transaction.Transaction {
	tx := &transaction.Transaction{
		ID:         id,
		ExternalID: "checkout_" + id,
		Status:     status,
		TotalValue: 32.90,
		Pix:        &transaction.Pix{Payload: "000201pix-" + id},
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		panic(fmt.Sprintf("marshal test transaction: %v", err))
	}
	tx.Raw = raw
	return tx
}

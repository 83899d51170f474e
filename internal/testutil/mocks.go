package testutil

import (
	"context"
	"sync"

	"github.com/burgl/checkout/internal/domain/transaction"
)

// --- Gateway mock ---

// MockGateway is a mock implementation of checkout.Gateway.
type MockGateway struct {
	mu           sync.Mutex
	transactions map[string]*transaction.Transaction

	ReadyErr   error
	SubmitFunc func(ctx context.Context, req *transaction.Request) (*transaction.Transaction, error)
	FetchFunc  func(ctx context.Context, id string) (*transaction.Transaction, error)

	SubmittedRequests []*transaction.Request
	FetchedIDs        []string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{transactions: make(map[string]*transaction.Transaction)}
}

// AddTransaction seeds the gateway-side view used by Fetch.
func (m *MockGateway) AddTransaction(tx *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.ID] = tx
}

func (m *MockGateway) Ready() error {
	return m.ReadyErr
}

func (m *MockGateway) Submit(ctx context.Context, req *transaction.Request) (*transaction.Transaction, error) {
	m.mu.Lock()
	m.SubmittedRequests = append(m.SubmittedRequests, req)
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req)
	}

	tx := NewTestTransaction("tx_1", transaction.StatusPending)
	tx.ExternalID = req.ExternalID
	tx.TotalValue = req.TotalAmount
	m.AddTransaction(tx)
	return tx, nil
}

func (m *MockGateway) Fetch(ctx context.Context, id string) (*transaction.Transaction, error) {
	m.mu.Lock()
	m.FetchedIDs = append(m.FetchedIDs, id)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.transactions[id]; ok {
		return tx, nil
	}
	return NewTestTransaction(id, transaction.StatusPending), nil
}

// --- Event publisher mock ---

// MockPublisher records published checkout events.
type MockPublisher struct {
	mu      sync.Mutex
	Created []*transaction.Transaction
	Err     error
}

func (m *MockPublisher) PublishTransactionCreated(_ context.Context, tx *transaction.Transaction) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, tx)
	return nil
}

func (m *MockPublisher) CreatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Created)
}

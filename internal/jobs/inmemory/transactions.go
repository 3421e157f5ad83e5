package inmemory

import (
	"context"
	"sync"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// TransactionStore is an in-memory transaction store keyed by job ID.
type TransactionStore struct {
	mu  sync.RWMutex
	txs map[string][]domain.Transaction
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		txs: make(map[string][]domain.Transaction),
	}
}

// ReplaceTransactions swaps the stored batch for the job, keeping
// re-runs idempotent.
func (s *TransactionStore) ReplaceTransactions(ctx context.Context, jobID string, txs []domain.Transaction) error {
	batch := make([]domain.Transaction, len(txs))
	copy(batch, txs)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[jobID] = batch
	return nil
}

// ListTransactions returns the stored batch for one job.
func (s *TransactionStore) ListTransactions(ctx context.Context, jobID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := make([]domain.Transaction, len(s.txs[jobID]))
	copy(batch, s.txs[jobID])
	return batch, nil
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Bikorwhat/ecommerce/internal/payment"
)

// InMemoryStore keeps the ledger in process memory. Intended for tests and
// single-process development runs.
type InMemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	byIndex map[string]payment.PurchaseRecord
	clock   func() time.Time
}

// MemoryOption configures an InMemoryStore.
type MemoryOption func(*InMemoryStore)

// WithClock substitutes the purchase-date source, for deterministic tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *InMemoryStore) { s.clock = clock }
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		nextID:  1,
		byIndex: make(map[string]payment.PurchaseRecord),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Insert(_ context.Context, record *payment.PurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byIndex[record.PaymentIndex]; exists {
		return ErrDuplicatePurchase
	}

	record.ID = s.nextID
	record.PurchaseDate = s.clock()
	s.nextID++
	s.byIndex[record.PaymentIndex] = *record
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID string) ([]payment.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []payment.PurchaseRecord
	for _, record := range s.byIndex {
		if record.SubjectID == subjectID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].PurchaseDate.Equal(records[j].PurchaseDate) {
			return records[i].PurchaseDate.After(records[j].PurchaseDate)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

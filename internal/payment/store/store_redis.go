package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Bikorwhat/ecommerce/internal/payment"
)

const (
	keyNextID        = "purchase:next_id"
	keyRecordPrefix  = "purchase:pidx:"
	keySubjectPrefix = "purchase:subject:"
)

// RedisStore persists the ledger in Redis. Each record lives at
// purchase:pidx:<pidx> as JSON; SET NX on that key is the exactly-once
// guarantee. A per-subject list at purchase:subject:<id> orders payment
// indexes newest first.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Insert(ctx context.Context, record *payment.PurchaseRecord) error {
	id, err := s.client.Incr(ctx, keyNextID).Result()
	if err != nil {
		return fmt.Errorf("allocate purchase id: %w", err)
	}
	record.ID = id
	record.PurchaseDate = time.Now()
	if len(record.Items) == 0 {
		record.Items = []byte("[]")
	}

	payload, err := json.Marshal(storedRecord{
		PurchaseRecord: *record,
		SubjectID:      record.SubjectID,
		UserEmail:      record.UserEmail,
		UserName:       record.UserName,
	})
	if err != nil {
		return fmt.Errorf("encode purchase: %w", err)
	}

	inserted, err := s.client.SetNX(ctx, keyRecordPrefix+record.PaymentIndex, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("store purchase: %w", err)
	}
	if !inserted {
		return ErrDuplicatePurchase
	}

	if err := s.client.LPush(ctx, keySubjectPrefix+record.SubjectID, record.PaymentIndex).Err(); err != nil {
		return fmt.Errorf("index purchase by subject: %w", err)
	}
	return nil
}

func (s *RedisStore) ListBySubject(ctx context.Context, subjectID string) ([]payment.PurchaseRecord, error) {
	indexes, err := s.client.LRange(ctx, keySubjectPrefix+subjectID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list subject purchases: %w", err)
	}
	if len(indexes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(indexes))
	for i, idx := range indexes {
		keys[i] = keyRecordPrefix + idx
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch purchases: %w", err)
	}

	records := make([]payment.PurchaseRecord, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var stored storedRecord
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("decode purchase: %w", err)
		}
		record := stored.PurchaseRecord
		record.SubjectID = stored.SubjectID
		record.UserEmail = stored.UserEmail
		record.UserName = stored.UserName
		records = append(records, record)
	}
	return records, nil
}

// storedRecord re-exposes the fields the API shape hides so they survive
// the round trip through Redis.
type storedRecord struct {
	payment.PurchaseRecord
	SubjectID string `json:"subject_id"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
}

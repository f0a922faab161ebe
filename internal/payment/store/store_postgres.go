package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Bikorwhat/ecommerce/internal/payment"
)

// PostgresStore persists the ledger in the purchase_history table:
//
//	CREATE TABLE purchase_history (
//	    id                SERIAL PRIMARY KEY,
//	    subject_id        TEXT NOT NULL,
//	    user_email        TEXT NOT NULL DEFAULT '',
//	    user_name         TEXT NOT NULL DEFAULT '',
//	    purchase_date     TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    total_amount      NUMERIC(12, 2) NOT NULL,
//	    items             JSONB NOT NULL DEFAULT '[]',
//	    pidx              TEXT NOT NULL UNIQUE,
//	    status            TEXT NOT NULL,
//	    purchase_order_id TEXT NOT NULL DEFAULT ''
//	);
//
// The unique constraint on pidx is the exactly-once guarantee; the store
// maps its violation to ErrDuplicatePurchase.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Insert(ctx context.Context, record *payment.PurchaseRecord) error {
	items := record.Items
	if len(items) == 0 {
		items = []byte("[]")
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO purchase_history
		   (subject_id, user_email, user_name, total_amount, items, pidx, status, purchase_order_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, purchase_date`,
		record.SubjectID, record.UserEmail, record.UserName, record.TotalAmount,
		[]byte(items), record.PaymentIndex, record.Status, record.OrderID).
		Scan(&record.ID, &record.PurchaseDate)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicatePurchase
	}
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]payment.PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, user_email, user_name, purchase_date,
		        total_amount, items, pidx, status, purchase_order_id
		 FROM purchase_history
		 WHERE subject_id = $1
		 ORDER BY purchase_date DESC, id DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var records []payment.PurchaseRecord
	for rows.Next() {
		var record payment.PurchaseRecord
		var items []byte
		if err := rows.Scan(&record.ID, &record.SubjectID, &record.UserEmail, &record.UserName,
			&record.PurchaseDate, &record.TotalAmount, &items, &record.PaymentIndex,
			&record.Status, &record.OrderID); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		record.Items = items
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return records, nil
}

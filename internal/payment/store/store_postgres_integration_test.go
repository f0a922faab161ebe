//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Bikorwhat/ecommerce/internal/payment"
	"github.com/Bikorwhat/ecommerce/internal/payment/store"
	"github.com/Bikorwhat/ecommerce/pkg/testutil/containers"
)

const purchaseHistorySchema = `
CREATE TABLE IF NOT EXISTS purchase_history (
    id                SERIAL PRIMARY KEY,
    subject_id        TEXT NOT NULL,
    user_email        TEXT NOT NULL DEFAULT '',
    user_name         TEXT NOT NULL DEFAULT '',
    purchase_date     TIMESTAMPTZ NOT NULL DEFAULT now(),
    total_amount      NUMERIC(12, 2) NOT NULL,
    items             JSONB NOT NULL DEFAULT '[]',
    pidx              TEXT NOT NULL UNIQUE,
    status            TEXT NOT NULL,
    purchase_order_id TEXT NOT NULL DEFAULT ''
)`

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.Exec(s.T(), purchaseHistorySchema)
	s.store = store.NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), "TRUNCATE purchase_history RESTART IDENTITY")
}

func makeRecord(subject, pidx string, amount float64) *payment.PurchaseRecord {
	return &payment.PurchaseRecord{
		SubjectID:    subject,
		UserEmail:    "buyer@example.com",
		UserName:     "Buyer",
		TotalAmount:  amount,
		Items:        []byte(`[{"name":"Widget","qty":2}]`),
		PaymentIndex: pidx,
		Status:       "Completed",
		OrderID:      "order-" + pidx,
	}
}

func (s *PostgresStoreSuite) TestInsertAssignsIDAndDate() {
	ctx := context.Background()
	record := makeRecord("auth0|1", "pidx-a", 150.5)

	s.Require().NoError(s.store.Insert(ctx, record))
	s.NotZero(record.ID)
	s.False(record.PurchaseDate.IsZero())
}

func (s *PostgresStoreSuite) TestUniqueConstraintMapsToDuplicate() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, makeRecord("auth0|1", "pidx-a", 100)))

	err := s.store.Insert(ctx, makeRecord("auth0|2", "pidx-a", 100))
	s.ErrorIs(err, store.ErrDuplicatePurchase)
}

func (s *PostgresStoreSuite) TestListBySubjectNewestFirst() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, makeRecord("auth0|1", "pidx-a", 100)))
	s.Require().NoError(s.store.Insert(ctx, makeRecord("auth0|1", "pidx-b", 200)))
	s.Require().NoError(s.store.Insert(ctx, makeRecord("auth0|2", "pidx-c", 300)))

	records, err := s.store.ListBySubject(ctx, "auth0|1")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("pidx-b", records[0].PaymentIndex)
	s.Equal("pidx-a", records[1].PaymentIndex)
	s.InDelta(200, records[0].TotalAmount, 0.001)
	s.JSONEq(`[{"name":"Widget","qty":2}]`, string(records[0].Items))
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Bikorwhat/ecommerce/internal/auth"
)

// PostgresUserStore persists users in the users table:
//
//	CREATE TABLE users (
//	    id         UUID PRIMARY KEY,
//	    username   TEXT NOT NULL UNIQUE,
//	    email      TEXT NOT NULL DEFAULT '',
//	    first_name TEXT NOT NULL DEFAULT '',
//	    last_name  TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresUserStore) FindByUsername(ctx context.Context, username string) (*auth.LocalUser, error) {
	var user auth.LocalUser
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, first_name, last_name, created_at
		 FROM users WHERE username = $1`, username).
		Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (s *PostgresUserStore) Create(ctx context.Context, user *auth.LocalUser) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, first_name, last_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

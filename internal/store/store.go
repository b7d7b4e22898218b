// Package store is the Postgres realization of the four port
// contracts in internal/ports, following the same Open/Migrate shape as
// the teacher's internal/db.Store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Store wraps the shared *sql.DB handle every port adapter queries
// through.
type Store struct{ DB *sql.DB }

// Open connects to Postgres and verifies the connection with a ping,
// matching the teacher's pool sizing.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{DB: db}, nil
}

// OpenWithRetry retries Open with exponential backoff (delay, 2*delay,
// 4*delay, ...), for boot-time tolerance of a database container that
// is still starting (Design Note §9: bounded backoff on connect, not a
// crash loop).
func OpenWithRetry(dsn string, attempts int, delay time.Duration) (*Store, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		s, err := Open(dsn)
		if err == nil {
			return s, nil
		}
		lastErr = err
		time.Sleep(delay * time.Duration(1<<i))
	}
	return nil, fmt.Errorf("open after %d attempts: %w", attempts, lastErr)
}

// Migrate applies every pending migration in dir.
func (s *Store) Migrate(dir string) error {
	driver, err := postgres.WithInstance(s.DB, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.DB.BeginTx(ctx, nil)
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	maxOpenConns = 10
	maxIdleConns = 5
	pingTimeout  = 5 * time.Second
)

// Connect opens a pool for one of the registered drivers ("postgres", "pgx",
// "sqlite3") and verifies it with a ping.
func Connect(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	if driverName == "sqlite3" {
		// every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Package sqlite opens file-backed SQLite databases through the pure-Go
// ncruces driver, so the index needs neither cgo nor a database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Client wraps a *sql.DB opened on a single SQLite file.
type Client struct {
	DB   *sql.DB
	path string
}

// Open opens (or creates) the database at path. WAL journaling lets readers
// proceed while nothing writes, which matches a build-once, read-many index.
func Open(path string) (*Client, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database %s: %w", path, err)
	}
	return &Client{DB: db, path: path}, nil
}

// Path returns the database file path.
func (c *Client) Path() string {
	return c.path
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping verifies the database file is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

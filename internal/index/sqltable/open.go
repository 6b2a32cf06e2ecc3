package sqltable

import (
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the index table selected by cfg.Store.Driver together with the
// closer for its connection.
func Open(cfg *config.Config) (index.Table, io.Closer, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return index.NewMemTable(), nopCloser{}, nil
	case config.DriverPostgres:
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return New(client.DB, Postgres), client, nil
	case config.DriverSQLite:
		client, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return New(client.DB, SQLite), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

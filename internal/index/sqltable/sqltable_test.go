package sqltable

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikidump/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/sqlite"
)

const sampleDump = `600:1:alpha
600:2:a(b)+c
not:a:valid:line
1200:3:beta
1200:4:alpha
1800:5:gamma
`

func newSQLiteTable(t *testing.T) *Table {
	t.Helper()
	client, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return New(client.DB, SQLite)
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *Table {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	client, err := postgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "wikidump_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "wikidump"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Skipf("skipping postgres test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	table := New(client.DB, Postgres)
	if err := table.Drop(context.Background()); err != nil {
		t.Fatalf("dropping stale table: %v", err)
	}
	t.Cleanup(func() { table.Drop(context.Background()) })
	return table
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestSQLiteTable(t *testing.T) {
	exerciseTable(t, newSQLiteTable(t))
}

func TestPostgresTable(t *testing.T) {
	exerciseTable(t, skipIfNoPostgres(t))
}

func exerciseTable(t *testing.T, table *Table) {
	ctx := context.Background()
	stats, err := index.Build(ctx, table, strings.NewReader(sampleDump))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if stats.Inserted != 5 || stats.Skipped != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	count, err := table.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 rows, got %d", count)
	}

	lookups := map[string]uint64{
		"alpha":  600,
		"a(b)+c": 600,
		"beta":   1200,
		"gamma":  1800,
	}
	for title, want := range lookups {
		got, found, err := table.Lookup(ctx, title)
		if err != nil || !found {
			t.Fatalf("Lookup(%q) found=%v err=%v", title, found, err)
		}
		if got != want {
			t.Errorf("Lookup(%q) = %d, want %d", title, got, want)
		}
	}
	if _, found, err := table.Lookup(ctx, "missing"); found || err != nil {
		t.Errorf("Lookup(missing) found=%v err=%v", found, err)
	}

	next, found, err := table.NextOffset(ctx, 600)
	if err != nil || !found || next != 1200 {
		t.Errorf("NextOffset(600) = %d, %v, %v", next, found, err)
	}
	if _, found, err := table.NextOffset(ctx, 1800); found || err != nil {
		t.Errorf("NextOffset(1800) found=%v err=%v", found, err)
	}

	_, err = index.Build(ctx, table, strings.NewReader("1:1:again\n"))
	if !errors.Is(err, apperrors.ErrIndexExists) {
		t.Fatalf("expected ErrIndexExists on rebuild, got %v", err)
	}
}

func TestSQLiteFailedBuildLeavesNoTable(t *testing.T) {
	ctx := context.Background()
	table := newSQLiteTable(t)
	_, err := index.Build(ctx, table, strings.NewReader("100:1:first\n200:x:second\n"))
	if err == nil {
		t.Fatal("expected build error")
	}
	exists, err := table.exists(ctx)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Fatal("table must not survive a failed build")
	}
	if _, err := index.Build(ctx, table, strings.NewReader("100:1:first\n")); err != nil {
		t.Fatalf("retry build failed: %v", err)
	}
}

func TestSQLiteDropAndRebuild(t *testing.T) {
	ctx := context.Background()
	table := newSQLiteTable(t)
	if _, err := index.Build(ctx, table, strings.NewReader("100:1:old\n")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := table.Drop(ctx); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if _, err := index.Build(ctx, table, strings.NewReader("300:2:new\n")); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if _, found, _ := table.Lookup(ctx, "old"); found {
		t.Error("old title survived a rebuild")
	}
	if got, found, _ := table.Lookup(ctx, "new"); !found || got != 300 {
		t.Errorf("Lookup(new) = %d, %v", got, found)
	}
}

func TestPostgresIgnoresTableInOtherSchema(t *testing.T) {
	table := skipIfNoPostgres(t)
	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE SCHEMA IF NOT EXISTS wikidump_shadow`,
		`CREATE TABLE IF NOT EXISTS wikidump_shadow.multistream_index (title TEXT)`,
	} {
		if _, err := table.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	t.Cleanup(func() { table.db.Exec(`DROP SCHEMA IF EXISTS wikidump_shadow CASCADE`) })

	if _, err := index.Build(ctx, table, strings.NewReader("10:1:alpha\n")); err != nil {
		t.Fatalf("Build with a same-named table in another schema: %v", err)
	}
	if got, found, err := table.Lookup(ctx, "alpha"); err != nil || !found || got != 10 {
		t.Errorf("Lookup(alpha) = %d, %v, %v", got, found, err)
	}
}

// Package sqltable stores the multistream index in a relational table through
// database/sql. SQLite (ncruces driver) and PostgreSQL (lib/pq) share the
// schema; they differ in placeholders and in how rows are bulk loaded.
//
// Schema:
//
//	CREATE TABLE multistream_index (
//	    seq        BIGINT NOT NULL,
//	    bz2_offset BIGINT NOT NULL,
//	    id         BIGINT NOT NULL,
//	    title      TEXT   NOT NULL
//	);
//	CREATE INDEX idx_title      ON multistream_index(title);
//	CREATE INDEX idx_bz2_offset ON multistream_index(bz2_offset);
//
// seq is the load order and makes "first inserted wins" explicit for
// duplicate titles.
package sqltable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikidump/pkg/errors"
)

const tableName = "multistream_index"

// Dialect captures the per-database differences.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// bulk, when set, replaces row-by-row INSERTs during Load.
	bulk func(ctx context.Context, tx *sql.Tx) (rowWriter, error)
}

// SQLite uses "?" placeholders and prepared INSERTs.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
}

// Postgres uses "$n" placeholders and COPY for the bulk load.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	bulk:        copyInWriter,
}

// Table implements index.Table on a *sql.DB.
type Table struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ index.Table = (*Table)(nil)

// New wraps db. The caller keeps ownership of db; Close is a no-op.
func New(db *sql.DB, dialect Dialect) *Table {
	return &Table{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "index-table", "dialect", dialect.Name),
	}
}

type rowWriter interface {
	write(seq int64, rec index.Record) error
	close() error
}

// Load creates the table, fills it and builds both secondary indexes inside
// one transaction. Loading over an existing table fails with
// errors.ErrIndexExists.
func (t *Table) Load(ctx context.Context, fill func(insert index.InsertFunc) error) error {
	exists, err := t.exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: table %s", apperrors.ErrIndexExists, tableName)
	}

	return t.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE `+tableName+` (
			seq        BIGINT NOT NULL,
			bz2_offset BIGINT NOT NULL,
			id         BIGINT NOT NULL,
			title      TEXT   NOT NULL
		)`); err != nil {
			return fmt.Errorf("%w: creating table: %w", apperrors.ErrStore, err)
		}

		w, err := t.newWriter(ctx, tx)
		if err != nil {
			return err
		}
		var seq int64
		fillErr := fill(func(rec index.Record) error {
			if rec.Offset > math.MaxInt64 || rec.DocumentID > math.MaxInt64 {
				return fmt.Errorf("%w: record %q exceeds BIGINT range", apperrors.ErrInvalidInput, rec.Title)
			}
			seq++
			if err := w.write(seq, rec); err != nil {
				return fmt.Errorf("%w: inserting %q: %w", apperrors.ErrStore, rec.Title, err)
			}
			return nil
		})
		closeErr := w.close()
		if fillErr != nil {
			return fillErr
		}
		if closeErr != nil {
			return fmt.Errorf("%w: flushing rows: %w", apperrors.ErrStore, closeErr)
		}

		for _, stmt := range []string{
			`CREATE INDEX idx_title ON ` + tableName + `(title)`,
			`CREATE INDEX idx_bz2_offset ON ` + tableName + `(bz2_offset)`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%w: creating index: %w", apperrors.ErrStore, err)
			}
		}
		t.logger.Info("index table loaded", "rows", seq)
		return nil
	})
}

func (t *Table) Lookup(ctx context.Context, title string) (uint64, bool, error) {
	query := `SELECT bz2_offset FROM ` + tableName +
		` WHERE title = ` + t.dialect.Placeholder(1) + ` ORDER BY seq LIMIT 1`
	var offset int64
	err := t.db.QueryRowContext(ctx, query, title).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: looking up %q: %w", apperrors.ErrStore, title, err)
	}
	return uint64(offset), true, nil
}

func (t *Table) NextOffset(ctx context.Context, offset uint64) (uint64, bool, error) {
	if offset >= math.MaxInt64 {
		return 0, false, nil
	}
	query := `SELECT MIN(bz2_offset) FROM ` + tableName +
		` WHERE bz2_offset > ` + t.dialect.Placeholder(1)
	var next sql.NullInt64
	if err := t.db.QueryRowContext(ctx, query, int64(offset)).Scan(&next); err != nil {
		return 0, false, fmt.Errorf("%w: next offset after %d: %w", apperrors.ErrStore, offset, err)
	}
	if !next.Valid {
		return 0, false, nil
	}
	return uint64(next.Int64), true, nil
}

// Drop removes the table and its indexes.
func (t *Table) Drop(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+tableName); err != nil {
		return fmt.Errorf("%w: dropping table: %w", apperrors.ErrStore, err)
	}
	t.logger.Info("index table dropped")
	return nil
}

// Count returns the number of stored rows.
func (t *Table) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tableName).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting rows: %w", apperrors.ErrStore, err)
	}
	return n, nil
}

func (t *Table) Close() error {
	return nil
}

func (t *Table) exists(ctx context.Context) (bool, error) {
	var query string
	switch t.dialect.Name {
	case Postgres.Name:
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var n int
	if err := t.db.QueryRowContext(ctx, query, tableName).Scan(&n); err != nil {
		return false, fmt.Errorf("%w: checking for table: %w", apperrors.ErrStore, err)
	}
	return n > 0, nil
}

func (t *Table) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", apperrors.ErrStore, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", apperrors.ErrStore, err)
	}
	return nil
}

func (t *Table) newWriter(ctx context.Context, tx *sql.Tx) (rowWriter, error) {
	if t.dialect.bulk != nil {
		return t.dialect.bulk(ctx, tx)
	}
	placeholders := make([]string, 4)
	for i := range placeholders {
		placeholders[i] = t.dialect.Placeholder(i + 1)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+tableName+
		` (seq, bz2_offset, id, title) VALUES (`+strings.Join(placeholders, ", ")+`)`)
	if err != nil {
		return nil, fmt.Errorf("%w: preparing insert: %w", apperrors.ErrStore, err)
	}
	return &stmtWriter{ctx: ctx, stmt: stmt}, nil
}

type stmtWriter struct {
	ctx  context.Context
	stmt *sql.Stmt
}

func (w *stmtWriter) write(seq int64, rec index.Record) error {
	_, err := w.stmt.ExecContext(w.ctx, seq, int64(rec.Offset), int64(rec.DocumentID), rec.Title)
	return err
}

func (w *stmtWriter) close() error {
	return w.stmt.Close()
}

// copyWriter streams rows through PostgreSQL COPY FROM STDIN.
type copyWriter struct {
	ctx  context.Context
	stmt *sql.Stmt
}

func copyInWriter(ctx context.Context, tx *sql.Tx) (rowWriter, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(tableName, "seq", "bz2_offset", "id", "title"))
	if err != nil {
		return nil, fmt.Errorf("%w: preparing copy: %w", apperrors.ErrStore, err)
	}
	return &copyWriter{ctx: ctx, stmt: stmt}, nil
}

func (w *copyWriter) write(seq int64, rec index.Record) error {
	_, err := w.stmt.ExecContext(w.ctx, seq, int64(rec.Offset), int64(rec.DocumentID), rec.Title)
	return err
}

func (w *copyWriter) close() error {
	if _, err := w.stmt.ExecContext(w.ctx); err != nil {
		w.stmt.Close()
		return err
	}
	return w.stmt.Close()
}

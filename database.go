package dbwrapper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq" // registers the default "postgres" driver
)

// Pool hands out Databases, each owning one pooled connection and one
// transaction. A single Pool is safe for concurrent use.
type Pool struct {
	db      *sql.DB
	config  Config
	queries *queryLoader
	logger  *slog.Logger
}

// Open opens a *sql.DB with cfg.Driver and cfg.DSN and applies the pool
// limits from cfg.
func Open(cfg Config) (*Pool, error) {
	cfg = defaultConfig(cfg)
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(db, cfg), nil
}

// New wraps an existing *sql.DB. Optionally provide a Config; unspecified
// fields fall back to defaults.
func New(db *sql.DB, cfg ...Config) *Pool {
	var c Config
	if len(cfg) > 0 {
		c = cfg[0]
	}
	c = defaultConfig(c)
	return &Pool{
		db:      db,
		config:  c,
		queries: newQueryLoader(c.QueriesDir, c.CacheQueries),
		logger:  c.Logger,
	}
}

// Config returns the effective configuration.
func (p *Pool) Config() Config { return p.config }

// Close closes the underlying *sql.DB.
func (p *Pool) Close() error { return p.db.Close() }

// Connect acquires a dedicated connection and begins a transaction on it.
// The caller must end the Database with End or Disconnect.
func (p *Pool) Connect(ctx context.Context) (*Database, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Database{pool: p, conn: conn, tx: tx}, nil
}

// Do runs fn inside one Database scope. The transaction is committed when
// fn returns nil and rolled back when it returns an error or panics; the
// connection is released exactly once either way. A panic is re-raised
// after the rollback.
func (p *Pool) Do(ctx context.Context, fn func(db *Database) error) (err error) {
	db, err := p.Connect(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			db.End(fmt.Errorf("dbwrapper: panic: %v", r))
			panic(r)
		}
	}()

	ferr := fn(db)
	eerr := db.End(ferr)
	if errors.Is(eerr, ErrClosed) {
		// fn disconnected on its own.
		eerr = nil
	}
	if ferr != nil {
		return ferr
	}
	return eerr
}

// Database is the transactional facade: it owns one pooled connection and
// the transaction running on it until End or Disconnect. It is NOT safe for
// concurrent use.
type Database struct {
	pool   *Pool
	conn   *sql.Conn
	tx     *sql.Tx
	cur    *Cursor // live result set, if any
	failed bool
	closed bool
}

// Execute is a convenience that runs a statement with context.Background().
func (d *Database) Execute(nameOrSQL string, params P) (*Cursor, error) {
	return d.ExecuteContext(context.Background(), nameOrSQL, params)
}

// ExecuteContext resolves nameOrSQL (a named query, or literal SQL when no
// such query exists), binds params and returns a Cursor over the result.
func (d *Database) ExecuteContext(ctx context.Context, nameOrSQL string, params P) (*Cursor, error) {
	text, err := d.resolve(nameOrSQL)
	if err != nil {
		return nil, err
	}
	return d.query(ctx, text, params)
}

// Exec is a convenience that runs a statement with context.Background().
func (d *Database) Exec(nameOrSQL string, params P) (sql.Result, error) {
	return d.ExecContext(context.Background(), nameOrSQL, params)
}

// ExecContext resolves nameOrSQL like ExecuteContext but runs it as a
// statement returning no rows.
func (d *Database) ExecContext(ctx context.Context, nameOrSQL string, params P) (sql.Result, error) {
	text, err := d.resolve(nameOrSQL)
	if err != nil {
		return nil, err
	}
	q, args, err := d.prepare(text, params)
	if err != nil {
		return nil, err
	}
	res, err := d.tx.ExecContext(ctx, q, args...)
	if err != nil {
		d.failed = true
		return nil, err
	}
	return res, nil
}

// Paging is a convenience that fetches one page with context.Background().
func (d *Database) Paging(nameOrSQL string, params P, page, size int) (*Page, error) {
	return d.PagingContext(context.Background(), nameOrSQL, params, page, size)
}

// PagingContext fetches page (zero-based) of size rows. It asks for one row
// more than size: when that extra row arrives it is dropped and the page is
// not the last one, so no separate count query is needed.
func (d *Database) PagingContext(ctx context.Context, nameOrSQL string, params P, page, size int) (*Page, error) {
	if page < 0 || size <= 0 {
		return nil, fmt.Errorf("%w: page=%d, size=%d", ErrInvalidPage, page, size)
	}
	text, err := d.resolve(nameOrSQL)
	if err != nil {
		return nil, err
	}
	text = strings.TrimRight(strings.TrimSpace(text), "; \t\r\n")
	text = text + " " + pageClause(d.pool.config.Dialect, size+1, page*size)

	cur, err := d.query(ctx, text, params)
	if err != nil {
		return nil, err
	}
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	return newPage(page, size, rows), nil
}

// pageClause renders the row-limiting clause for the dialect. SQL Server
// only accepts OFFSET ... FETCH after an ORDER BY.
func pageClause(dialect Dialect, limit, offset int) string {
	if dialect == SQLServer {
		return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

// Select returns a SelectBuilder for table bound to d.
func (d *Database) Select(table string) *SelectBuilder {
	b := &SelectBuilder{}
	b.init(b, d, table)
	return b
}

// Update returns an UpdateBuilder for table bound to d.
func (d *Database) Update(table string) *UpdateBuilder {
	b := &UpdateBuilder{}
	b.init(b, d, table)
	return b
}

// Delete returns a DeleteBuilder for table bound to d.
func (d *Database) Delete(table string) *DeleteBuilder {
	b := &DeleteBuilder{}
	b.init(b, d, table)
	return b
}

// Insert returns an InsertBuilder for table bound to d.
func (d *Database) Insert(table string) *InsertBuilder {
	return &InsertBuilder{db: d, table: table, params: make(P), consts: make(map[string]string)}
}

// End finishes the scope: it commits when err is nil and no statement
// failed, and rolls back otherwise. The connection is released in both
// cases. A commit skipped because of a failed statement reports ErrTxFailed.
func (d *Database) End(err error) error {
	if d.closed {
		return ErrClosed
	}
	if err == nil && !d.failed {
		return d.release(true)
	}
	rerr := d.release(false)
	if err == nil && rerr == nil {
		return ErrTxFailed
	}
	return rerr
}

// Disconnect rolls back the transaction and releases the connection.
func (d *Database) Disconnect() error {
	if d.closed {
		return ErrClosed
	}
	return d.release(false)
}

// Closed reports whether the connection has been released.
func (d *Database) Closed() bool { return d.closed }

// release closes the live cursor, ends the transaction and returns the
// connection to the pool. It runs once.
func (d *Database) release(commit bool) error {
	d.closed = true
	d.closeCursor(ErrClosed)

	var err error
	if commit {
		err = d.tx.Commit()
	} else {
		err = d.tx.Rollback()
		if errors.Is(err, sql.ErrTxDone) {
			err = nil
		}
	}
	if cerr := d.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// resolve maps nameOrSQL to statement text.
func (d *Database) resolve(nameOrSQL string) (string, error) {
	if d.closed {
		return "", ErrClosed
	}
	return d.pool.queries.resolve(nameOrSQL)
}

// prepare logs the statement when enabled, rewrites placeholders and
// closes the live cursor so only one result set is open on the connection.
// The closed cursor's Err reports ErrCursorSuperseded.
func (d *Database) prepare(text string, params P) (string, []any, error) {
	cfg := d.pool.config
	if cfg.PrintSQL {
		d.pool.logger.Info("dbwrapper: executing statement", "sql", text, "params", params)
	}
	q, args, err := parse(cfg.Dialect, text, params, cfg.limits())
	if err != nil {
		return "", nil, err
	}
	d.closeCursor(ErrCursorSuperseded)
	return q, args, nil
}

func (d *Database) query(ctx context.Context, text string, params P) (*Cursor, error) {
	q, args, err := d.prepare(text, params)
	if err != nil {
		return nil, err
	}
	rows, err := d.tx.QueryContext(ctx, q, args...)
	if err != nil {
		d.failed = true
		return nil, err
	}
	cur, err := newCursor(rows)
	if err != nil {
		d.failed = true
		return nil, err
	}
	// a result set that fails mid-read spoils the transaction
	cur.onErr = func() { d.failed = true }
	d.cur = cur
	return cur, nil
}

// closeCursor closes the live cursor, which reports reason if it still had
// rows to read.
func (d *Database) closeCursor(reason error) {
	if d.cur != nil {
		d.cur.abort(reason)
		d.cur = nil
	}
}

//go:build cgo

package dbwrapper

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

// setupDuckDB returns a Pool over an in-memory DuckDB database holding an
// empty users table.
func setupDuckDB(t *testing.T) *Pool {
	t.Helper()
	sqlDB, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	// one physical connection keeps every scope on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	pool := New(sqlDB, Config{Dialect: SQLite, QueriesDir: t.TempDir()})
	err = pool.Do(context.Background(), func(db *Database) error {
		_, err := db.Exec("CREATE TABLE users (id BIGINT PRIMARY KEY, name VARCHAR, score DOUBLE, active BOOLEAN)", nil)
		return err
	})
	assertNoError(t, err)
	return pool
}

func insertUsers(t *testing.T, pool *Pool, names ...string) {
	t.Helper()
	err := pool.Do(context.Background(), func(db *Database) error {
		for i, name := range names {
			_, err := db.Insert("users").
				Set("id", int64(i+1)).
				Set("name", name).
				Set("score", float64(i)+0.5).
				Set("active", i%2 == 0).
				Exec()
			if err != nil {
				return err
			}
		}
		return nil
	})
	assertNoError(t, err)
}

func countUsers(t *testing.T, pool *Pool) int64 {
	t.Helper()
	var n int64
	err := pool.Do(context.Background(), func(db *Database) error {
		cur, err := db.Execute("SELECT count(*) AS n FROM users", nil)
		if err != nil {
			return err
		}
		r, err := cur.FetchOne()
		if err != nil {
			return err
		}
		v, err := r.Field("n")
		if err != nil {
			return err
		}
		n, err = v.Int64()
		return err
	})
	assertNoError(t, err)
	return n
}

func TestDuckDB_RoundTrip(t *testing.T) {
	pool := setupDuckDB(t)
	insertUsers(t, pool, "User 1", "User 2")

	err := pool.Do(context.Background(), func(db *Database) error {
		cur, err := db.Select("users").Fields("id", "name", "score", "active").Where("id", int64(2)).Execute()
		if err != nil {
			return err
		}
		r, err := cur.FetchOne()
		if err != nil {
			return err
		}

		id, _ := r.Field("id")
		name, _ := r.Field("name")
		score, _ := r.Field("score")
		active, _ := r.Field("active")
		if n, _ := id.Int64(); n != 2 {
			t.Fatalf("id = %v", id.Any())
		}
		if s, _ := name.String(); s != "User 2" {
			t.Fatalf("name = %v", name.Any())
		}
		if f, _ := score.Float64(); f != 1.5 {
			t.Fatalf("score = %v", score.Any())
		}
		if b, _ := active.Bool(); b {
			t.Fatalf("active = %v", active.Any())
		}
		if _, err := r.Field("birth"); !errors.Is(err, ErrFieldNotFound) {
			t.Fatalf("expected ErrFieldNotFound, got %v", err)
		}

		if _, err := cur.FetchOne(); !errors.Is(err, ErrNoMoreRows) {
			t.Fatalf("expected ErrNoMoreRows, got %v", err)
		}
		return nil
	})
	assertNoError(t, err)
}

func TestDuckDB_Paging(t *testing.T) {
	pool := setupDuckDB(t)
	insertUsers(t, pool, "User 1", "User 2", "User 3", "User 4")

	err := pool.Do(context.Background(), func(db *Database) error {
		p, err := db.Select("users").OrderBy("id").Paging(0, 3)
		if err != nil {
			return err
		}
		if p.Len() != 3 || p.LastPage() {
			t.Fatalf("page 0: len=%d last=%v", p.Len(), p.LastPage())
		}

		p, err = db.Select("users").OrderBy("id").Paging(1, 3)
		if err != nil {
			return err
		}
		if p.Len() != 1 || !p.LastPage() {
			t.Fatalf("page 1: len=%d last=%v", p.Len(), p.LastPage())
		}
		if ids := rowIDs(t, p.Data()); ids[0] != 4 {
			t.Fatalf("page 1 ids = %v", ids)
		}

		p, err = db.Paging("SELECT id FROM users ORDER BY id", nil, 2, 3)
		if err != nil {
			return err
		}
		if p.Len() != 0 || !p.LastPage() {
			t.Fatalf("page 2: len=%d last=%v", p.Len(), p.LastPage())
		}
		return nil
	})
	assertNoError(t, err)
}

func TestDuckDB_DeleteLike(t *testing.T) {
	pool := setupDuckDB(t)
	insertUsers(t, pool, "User 1", "User 2", "Admin")

	err := pool.Do(context.Background(), func(db *Database) error {
		res, err := db.Delete("users").WhereOp("name", "like", "Use%").Exec()
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 2 {
			t.Fatalf("RowsAffected = %d, want 2", n)
		}
		return nil
	})
	assertNoError(t, err)

	err = pool.Do(context.Background(), func(db *Database) error {
		cur, err := db.Select("users").Fields("name").Execute()
		if err != nil {
			return err
		}
		rows, err := cur.FetchAll()
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			t.Fatalf("remaining rows = %d, want 1", len(rows))
		}
		v, _ := rows[0].Field("name")
		if s, _ := v.String(); s != "Admin" {
			t.Fatalf("remaining name = %q", s)
		}
		return nil
	})
	assertNoError(t, err)
}

func TestDuckDB_UpdateThenSelect(t *testing.T) {
	pool := setupDuckDB(t)
	insertUsers(t, pool, "User 1", "User 2", "User 3")

	err := pool.Do(context.Background(), func(db *Database) error {
		_, err := db.Update("users").Set("name", "X").Where("id", int64(3)).Exec()
		return err
	})
	assertNoError(t, err)

	err = pool.Do(context.Background(), func(db *Database) error {
		cur, err := db.Select("users").Where("id", int64(3)).Execute()
		if err != nil {
			return err
		}
		r, err := cur.FetchOne()
		if err != nil {
			return err
		}
		v, _ := r.Field("name")
		if s, _ := v.String(); s != "X" {
			t.Fatalf("name = %q, want X", s)
		}
		return nil
	})
	assertNoError(t, err)
}

// TestDuckDB_ScopeSemantics checks that an error inside a scope discards
// its writes and a clean exit keeps them.
func TestDuckDB_ScopeSemantics(t *testing.T) {
	pool := setupDuckDB(t)
	boom := errors.New("boom")

	err := pool.Do(context.Background(), func(db *Database) error {
		if _, err := db.Insert("users").Set("id", int64(1)).Set("name", "gone").Exec(); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := countUsers(t, pool); n != 0 {
		t.Fatalf("rolled back row is visible: count=%d", n)
	}

	err = pool.Do(context.Background(), func(db *Database) error {
		_, err := db.Insert("users").Set("id", int64(1)).Set("name", "kept").Exec()
		return err
	})
	assertNoError(t, err)
	if n := countUsers(t, pool); n != 1 {
		t.Fatalf("committed row missing: count=%d", n)
	}
}

func TestDuckDB_NamedQuery(t *testing.T) {
	pool := setupDuckDB(t)
	insertUsers(t, pool, "User 1", "User 2", "User 3")
	writeQuery(t, pool.Config().QueriesDir, "find-user-by-id", "SELECT id, name FROM users WHERE id = %(id)s")

	err := pool.Do(context.Background(), func(db *Database) error {
		cur, err := db.Execute("find-user-by-id", P{"id": int64(3)})
		if err != nil {
			return err
		}
		rows, err := cur.FetchAll()
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			t.Fatalf("rows = %d", len(rows))
		}
		v, _ := rows[0].Field("name")
		if s, _ := v.String(); s != "User 3" {
			t.Fatalf("name = %q", s)
		}
		return nil
	})
	assertNoError(t, err)
}

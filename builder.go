package dbwrapper

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// condition is one WHERE term. expr is either a %(field)s placeholder or,
// for constant conditions, literal SQL inserted verbatim.
type condition struct {
	field string
	op    string
	expr  string
}

// assignment is one SET term, rendered as "field = expr".
type assignment struct {
	field string
	expr  string
}

// statement holds the state shared by Select, Update and Delete builders:
// table, WHERE terms and the named-parameter map. B is the concrete builder
// returned by the chaining methods.
//
// Parameters are keyed by field name. Binding the same field twice (as SET
// and WHERE value, or in two WHERE terms) keeps only the last value, which
// every placeholder for that field then receives.
type statement[B any] struct {
	self   B
	db     *Database
	table  string
	conds  []condition
	params P
	single map[string]bool // fields last bound as a column value
}

func (s *statement[B]) init(self B, db *Database, table string) {
	s.self = self
	s.db = db
	s.table = table
	s.params = make(P)
	s.single = make(map[string]bool)
}

// Where adds "field = %(field)s" and binds value under field.
func (s *statement[B]) Where(field string, value any) B {
	return s.WhereOp(field, "=", value)
}

// WhereOp adds "field <operator> %(field)s" and binds value under field.
func (s *statement[B]) WhereOp(field, operator string, value any) B {
	s.conds = append(s.conds, condition{field: field, op: operator, expr: placeholder(field)})
	s.params[field] = value
	delete(s.single, field)
	return s.self
}

// WhereConst adds "field <operator> expr" with expr inserted verbatim.
// expr is trusted SQL; nothing is escaped.
func (s *statement[B]) WhereConst(field, operator, expr string) B {
	s.conds = append(s.conds, condition{field: field, op: operator, expr: expr})
	return s.self
}

// WhereAll applies Where for every entry, in sorted key order.
func (s *statement[B]) WhereAll(m map[string]any) B {
	for _, k := range sortedKeys(m) {
		s.Where(k, m[k])
	}
	return s.self
}

// Parameters returns a copy of the named-parameter map.
func (s *statement[B]) Parameters() P {
	return copyParams(s.params)
}

// bound returns the parameters handed to the parser. Column values bind as
// one argument even when they are slices.
func (s *statement[B]) bound() P {
	return bindParams(s.params, func(k string) bool { return s.single[k] })
}

// buildWhere joins the conditions with AND. Without conditions it returns
// "", so the statement applies to every row.
func (s *statement[B]) buildWhere() string {
	if len(s.conds) == 0 {
		return ""
	}
	terms := make([]string, len(s.conds))
	for i, c := range s.conds {
		terms[i] = c.field + " " + c.op + " " + c.expr
	}
	return "WHERE " + strings.Join(terms, " AND ")
}

// --------------------------------
// Select
// --------------------------------

// SelectBuilder renders SELECT statements.
type SelectBuilder struct {
	statement[*SelectBuilder]
	fields  []string
	orderBy []string
	groupBy []string
}

// Fields sets the projection list. Without it the builder selects *.
func (b *SelectBuilder) Fields(fields ...string) *SelectBuilder {
	b.fields = append(b.fields, fields...)
	return b
}

// OrderBy appends ORDER BY terms, e.g. "name", "id DESC".
func (b *SelectBuilder) OrderBy(terms ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, terms...)
	return b
}

// GroupBy appends GROUP BY terms.
func (b *SelectBuilder) GroupBy(terms ...string) *SelectBuilder {
	b.groupBy = append(b.groupBy, terms...)
	return b
}

// SQL renders the statement with %(name)s placeholders.
func (b *SelectBuilder) SQL() (string, error) {
	proj := "*"
	if len(b.fields) > 0 {
		proj = strings.Join(b.fields, ", ")
	}
	parts := []string{"SELECT " + proj + " FROM " + b.table, b.buildWhere()}
	if len(b.groupBy) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(b.orderBy, ", "))
	}
	return joinParts(parts), nil
}

// Execute is a convenience that runs the statement with context.Background().
func (b *SelectBuilder) Execute() (*Cursor, error) {
	return b.ExecuteContext(context.Background())
}

// ExecuteContext runs the statement through the owning Database.
func (b *SelectBuilder) ExecuteContext(ctx context.Context) (*Cursor, error) {
	q, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.db.ExecuteContext(ctx, q, b.bound())
}

// Paging is a convenience that fetches one page with context.Background().
func (b *SelectBuilder) Paging(page, size int) (*Page, error) {
	return b.PagingContext(context.Background(), page, size)
}

// PagingContext fetches page (zero-based) of size rows. See Database.PagingContext.
func (b *SelectBuilder) PagingContext(ctx context.Context, page, size int) (*Page, error) {
	q, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.db.PagingContext(ctx, q, b.bound(), page, size)
}

// --------------------------------
// Update
// --------------------------------

// UpdateBuilder renders UPDATE statements. There is no guard against a
// missing WHERE clause.
type UpdateBuilder struct {
	statement[*UpdateBuilder]
	sets []assignment
}

// Set adds "field = %(field)s" and binds value under field. A slice value
// binds as one argument (an array column), never as a list.
func (b *UpdateBuilder) Set(field string, value any) *UpdateBuilder {
	b.sets = append(b.sets, assignment{field: field, expr: placeholder(field)})
	b.params[field] = value
	b.single[field] = true
	return b
}

// SetConst adds "field = expr" with expr inserted verbatim.
func (b *UpdateBuilder) SetConst(field, expr string) *UpdateBuilder {
	b.sets = append(b.sets, assignment{field: field, expr: expr})
	return b
}

// SetAll applies Set for every entry, in sorted key order.
func (b *UpdateBuilder) SetAll(m map[string]any) *UpdateBuilder {
	for _, k := range sortedKeys(m) {
		b.Set(k, m[k])
	}
	return b
}

// SQL renders the statement with %(name)s placeholders.
func (b *UpdateBuilder) SQL() (string, error) {
	if len(b.sets) == 0 {
		return "", fmt.Errorf("%w: UPDATE %s", ErrNoAssignments, b.table)
	}
	terms := make([]string, len(b.sets))
	for i, a := range b.sets {
		terms[i] = a.field + " = " + a.expr
	}
	return joinParts([]string{"UPDATE " + b.table + " SET " + strings.Join(terms, ", "), b.buildWhere()}), nil
}

// Execute is a convenience that runs the statement with context.Background().
func (b *UpdateBuilder) Execute() (*Cursor, error) {
	return b.ExecuteContext(context.Background())
}

// ExecuteContext runs the statement and returns its cursor.
func (b *UpdateBuilder) ExecuteContext(ctx context.Context) (*Cursor, error) {
	q, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.db.ExecuteContext(ctx, q, b.bound())
}

// Exec is a convenience that runs the statement with context.Background().
func (b *UpdateBuilder) Exec() (sql.Result, error) {
	return b.ExecContext(context.Background())
}

// ExecContext runs the statement and returns the driver result.
func (b *UpdateBuilder) ExecContext(ctx context.Context) (sql.Result, error) {
	q, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.db.ExecContext(ctx, q, b.bound())
}

// --------------------------------
// Delete
// --------------------------------

// DeleteBuilder renders DELETE statements. There is no guard against a
// missing WHERE clause.
type DeleteBuilder struct {
	statement[*DeleteBuilder]
}

// SQL renders the statement with %(name)s placeholders.
func (b *DeleteBuilder) SQL() (string, error) {
	return joinParts([]string{"DELETE FROM " + b.table, b.buildWhere()}), nil
}

// Execute is a convenience that runs the statement with context.Background().
func (b *DeleteBuilder) Execute() (*Cursor, error) {
	return b.ExecuteContext(context.Background())
}

// ExecuteContext runs the statement and returns its cursor.
func (b *DeleteBuilder) ExecuteContext(ctx context.Context) (*Cursor, error) {
	q, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.db.ExecuteContext(ctx, q, b.bound())
}

// Exec is a convenience that runs the statement with context.Background().
func (b *DeleteBuilder) Exec() (sql.Result, error) {
	return b.ExecContext(context.Background())
}

// ExecContext runs the statement and returns the driver result.
func (b *DeleteBuilder) ExecContext(ctx context.Context) (sql.Result, error) {
	q, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.db.ExecContext(ctx, q, b.bound())
}

// --------------------------------
// Insert
// --------------------------------

// InsertBuilder renders INSERT statements. Columns are either bound
// (Set/SetAll) or constant (SetConst); a column may not be both.
type InsertBuilder struct {
	db        *Database
	table     string
	cols      []string // first-seen order across bound and constant columns
	params    P
	consts    map[string]string
	returning []string
}

// Set binds value for field. A slice value binds as one argument.
func (b *InsertBuilder) Set(field string, value any) *InsertBuilder {
	b.track(field)
	b.params[field] = value
	return b
}

// SetConst inserts expr verbatim as the value of field.
func (b *InsertBuilder) SetConst(field, expr string) *InsertBuilder {
	b.track(field)
	b.consts[field] = expr
	return b
}

// SetAll applies Set for every entry, in sorted key order.
func (b *InsertBuilder) SetAll(m map[string]any) *InsertBuilder {
	for _, k := range sortedKeys(m) {
		b.Set(k, m[k])
	}
	return b
}

// Returning appends a RETURNING clause (Postgres, SQLite).
func (b *InsertBuilder) Returning(fields ...string) *InsertBuilder {
	b.returning = append(b.returning, fields...)
	return b
}

// Parameters returns a copy of the bound values.
func (b *InsertBuilder) Parameters() P {
	return copyParams(b.params)
}

// bound returns the parameters handed to the parser, every value bound as
// one argument so each column gets exactly one placeholder.
func (b *InsertBuilder) bound() P {
	return bindParams(b.params, func(string) bool { return true })
}

func (b *InsertBuilder) track(field string) {
	_, bound := b.params[field]
	_, constant := b.consts[field]
	if !bound && !constant {
		b.cols = append(b.cols, field)
	}
}

// SQL renders the statement with %(name)s placeholders. It fails with
// ErrDuplicateColumn when a column is both bound and constant.
func (b *InsertBuilder) SQL() (string, error) {
	var dup []string
	for _, c := range b.cols {
		_, bound := b.params[c]
		_, constant := b.consts[c]
		if bound && constant {
			dup = append(dup, c)
		}
	}
	if len(dup) > 0 {
		return "", fmt.Errorf("%w: %s", ErrDuplicateColumn, strings.Join(dup, ", "))
	}
	if len(b.cols) == 0 {
		return "", fmt.Errorf("%w: INSERT INTO %s", ErrNoAssignments, b.table)
	}

	values := make([]string, len(b.cols))
	for i, c := range b.cols {
		if expr, ok := b.consts[c]; ok {
			values[i] = expr
		} else {
			values[i] = placeholder(c)
		}
	}
	q := "INSERT INTO " + b.table + " (" + strings.Join(b.cols, ", ") + ") VALUES (" + strings.Join(values, ", ") + ")"
	if len(b.returning) > 0 {
		q += " RETURNING " + strings.Join(b.returning, ", ")
	}
	return q, nil
}

// Execute is a convenience that runs the statement with context.Background().
func (b *InsertBuilder) Execute() (*Cursor, error) {
	return b.ExecuteContext(context.Background())
}

// ExecuteContext runs the statement and returns its cursor, which holds the
// RETURNING rows if any were requested.
func (b *InsertBuilder) ExecuteContext(ctx context.Context) (*Cursor, error) {
	q, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.db.ExecuteContext(ctx, q, b.bound())
}

// Exec is a convenience that runs the statement with context.Background().
func (b *InsertBuilder) Exec() (sql.Result, error) {
	return b.ExecContext(context.Background())
}

// ExecContext runs the statement and returns the driver result.
func (b *InsertBuilder) ExecContext(ctx context.Context) (sql.Result, error) {
	q, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return b.db.ExecContext(ctx, q, b.bound())
}

// --------------------------------
// Utils
// --------------------------------

// placeholder returns the %(field)s token for field.
func placeholder(field string) string {
	return "%(" + field + ")s"
}

// joinParts joins the non-empty clauses with single spaces.
func joinParts(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bindParams copies p, wrapping the values selected by single in Scalar.
func bindParams(p P, single func(string) bool) P {
	out := make(P, len(p))
	for k, v := range p {
		if _, ok := v.(scalar); !ok && single(k) {
			v = Scalar(v)
		}
		out[k] = v
	}
	return out
}

func copyParams(p P) P {
	out := make(P, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

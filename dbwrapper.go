package dbwrapper

import (
	"errors"
	"strings"
)

// Dialect identifies the SQL dialect used to render positional placeholders
// and a few dialect-specific parsing behaviors.
type Dialect int

// P is a convenient alias for map[string]any used for named parameters.
type P = map[string]any

const (
	Postgres Dialect = iota
	MySQL
	SQLite
	SQLServer
)

const cacheSize = 1024 // Default size for the named-query cache

var (
	ErrConfigurationNotFound = errors.New("dbwrapper: configuration not found")
	ErrInvalidConfiguration  = errors.New("dbwrapper: invalid configuration")
	ErrDuplicateColumn       = errors.New("dbwrapper: column is both bound and constant")
	ErrNoAssignments         = errors.New("dbwrapper: statement has no assignments")
	ErrFieldNotFound         = errors.New("dbwrapper: field not found")
	ErrTypeMismatch          = errors.New("dbwrapper: value type mismatch")
	ErrClosed                = errors.New("dbwrapper: database already closed")
	ErrTxFailed              = errors.New("dbwrapper: transaction rolled back after failed statement")
	ErrNoMoreRows            = errors.New("dbwrapper: no more rows")
	ErrCursorSuperseded      = errors.New("dbwrapper: cursor closed by a later statement")
	ErrInvalidPage           = errors.New("dbwrapper: invalid page request")

	ErrParamMissing         = errors.New("dbwrapper: missing parameter")
	ErrSliceEmpty           = errors.New("dbwrapper: empty slice")
	ErrTooManyParams        = errors.New("dbwrapper: too many parameters")
	ErrParamNameTooLong     = errors.New("dbwrapper: parameter name too long")
	ErrPlaceholderMalformed = errors.New("dbwrapper: malformed placeholder")
)

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	default:
		return "unknown"
	}
}

// ParseDialect maps a dialect name (as returned by String) to a Dialect.
// A few common aliases are accepted.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3", "duckdb":
		return SQLite, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	default:
		return 0, errors.New("dbwrapper: unknown dialect " + name)
	}
}

// Scalar wraps a value to force it to be treated as a single argument
// even if it is a slice/array. Useful for ANY(%(ids)s)-style idioms.
func Scalar(v any) any {
	return scalar{v: v}
}

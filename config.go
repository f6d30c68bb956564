package dbwrapper

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-json"
)

// DefaultConfigPath is where LoadConfig looks when called with an empty path.
const DefaultConfigPath = "/etc/dbwrapper/config.json"

// Config carries connection parameters and behavior tweaks for a Pool.
// It is built once (by hand, LoadConfig or ConfigFromMap) and passed
// explicitly; there is no process-wide instance.
type Config struct {
	// Driver is the database/sql driver name. Defaults to "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is handed to sql.Open as-is.
	DSN string `mapstructure:"dsn"`
	// Dialect selects the positional placeholder style. Defaults to Postgres.
	Dialect Dialect `mapstructure:"dialect"`
	// QueriesDir holds <name>.sql files for named queries. Defaults to "sql".
	// Set to "-" to disable named-query lookup.
	QueriesDir string `mapstructure:"queries_dir"`
	// CacheQueries keeps named-query text in memory after the first read.
	CacheQueries bool `mapstructure:"cache_queries"`
	// PrintSQL logs every statement and its parameters before execution.
	PrintSQL bool `mapstructure:"print_sql"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// MaxParams limits placeholders per statement.
	// If = 0, it uses a per-dialect default. If < 0, it's "unlimited".
	MaxParams int `mapstructure:"max_params"`
	// MaxNameLen limits placeholder name length. Defaults to 64.
	MaxNameLen int `mapstructure:"max_name_len"`

	// Logger receives SQL logging. Defaults to slog.Default().
	Logger *slog.Logger `mapstructure:"-"`
}

// dsnKeys are raw libpq connection parameters accepted by ConfigFromMap
// when no "dsn" key is present.
var dsnKeys = map[string]string{
	"host":            "host",
	"port":            "port",
	"dbname":          "dbname",
	"database":        "dbname",
	"user":            "user",
	"password":        "password",
	"sslmode":         "sslmode",
	"connect_timeout": "connect_timeout",
}

// LoadConfig reads a JSON configuration file. An empty path means
// DefaultConfigPath.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigurationNotFound, path)
		}
		return Config{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, path, err)
	}
	return ConfigFromMap(raw)
}

// ConfigFromMap decodes a dictionary configuration. Raw connection
// parameters (host, port, dbname, user, password, sslmode) are assembled
// into a key=value DSN when "dsn" is absent.
func ConfigFromMap(m map[string]any) (Config, error) {
	var c Config
	if m == nil {
		return defaultConfig(c), nil
	}

	rest := make(map[string]any, len(m))
	conn := make(map[string]string)
	for k, v := range m {
		if param, ok := dsnKeys[k]; ok {
			conn[param] = fmt.Sprint(v)
			continue
		}
		rest[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.DecodeHookFuncType(stringToDialectHook),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(rest); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	if c.DSN == "" && len(conn) > 0 {
		c.DSN = buildDSN(conn)
	}
	return defaultConfig(c), nil
}

// stringToDialectHook lets "dialect": "mysql" decode into a Dialect.
func stringToDialectHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(Dialect(0)) || from.Kind() != reflect.String {
		return data, nil
	}
	d, err := ParseDialect(data.(string))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// buildDSN renders libpq key=value pairs in a stable order.
func buildDSN(conn map[string]string) string {
	keys := make([]string, 0, len(conn))
	for k := range conn {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteDSNValue(conn[k]))
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue quotes a libpq value when it is empty or contains spaces,
// quotes or backslashes.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// defaultConfig fills unspecified fields with defaults.
func defaultConfig(c Config) Config {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.QueriesDir == "" {
		c.QueriesDir = "sql"
	}

	if c.MaxParams == 0 {
		switch c.Dialect {
		case SQLServer:
			c.MaxParams = 2100
		case SQLite:
			c.MaxParams = 999
		case Postgres, MySQL:
			c.MaxParams = 65535
		}
	}

	if c.MaxNameLen <= 0 {
		c.MaxNameLen = 64
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return c
}

func (c Config) limits() limits {
	return limits{MaxParams: c.MaxParams, MaxNameLen: c.MaxNameLen}
}

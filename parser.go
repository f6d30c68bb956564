package dbwrapper

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// scalar is a wrapper to force scalar binding semantics.
type scalar struct {
	v any
}

func (s scalar) String() string { return fmt.Sprint(s.v) }

// limits bounds what a single parse may emit.
type limits struct {
	// MaxParams limits the total number of placeholders emitted by one
	// statement. If < 0, it's treated as "unlimited".
	MaxParams int
	// MaxNameLen limits the length of a placeholder name, e.g. "%(this_is_a_name)s".
	MaxNameLen int
}

// parse rewrites %(name)s placeholders in q into dialect-specific positional
// placeholders and returns the ordered argument list. It walks the input
// with a small state machine so quoted text, identifiers, comments and
// dollar-quoted bodies pass through untouched.
func parse(dialect Dialect, q string, params P, lim limits) (string, []any, error) {
	est := strings.Count(q, "%(")
	args := make([]any, 0, est)

	var buf strings.Builder
	// Small oversizing to reduce reallocations; some dialects emit longer tokens.
	extraPer := 1
	switch dialect {
	case Postgres, SQLServer:
		extraPer = 4
	}
	buf.Grow(len(q) + 16 + est*extraPer)

	n := 0
	var dqTag string // active dollar-quoted tag (Postgres-like)

	const (
		sText = iota
		sSQ   // '...'
		sDQ   // "..."
		sBT   // `...` (MySQL/SQLite)
		sBR   // [...] (SQL Server)
		sLC   // line comment -- or # (MySQL only)
		sBC   // block comment /* ... */
		sDQD  // $tag$ ... $tag$ (dollar-quoted)
	)
	state := sText

	ensureAdd := func(cur, add int) error {
		if lim.MaxParams > 0 && cur+add > lim.MaxParams {
			return fmt.Errorf("%w: requested=%d, limit=%d", ErrTooManyParams, cur+add, lim.MaxParams)
		}
		return nil
	}
	emit := func(v any) {
		n++
		writePlaceholder(&buf, dialect, n)
		args = append(args, v)
	}

	for i := 0; i < len(q); {
		c := q[i]

		switch state {
		case sText:
			if c == '-' && i+1 < len(q) && q[i+1] == '-' {
				state = sLC
				buf.WriteString("--")
				i += 2
				continue
			}
			if c == '#' && dialect == MySQL {
				state = sLC
				buf.WriteByte('#')
				i++
				continue
			}
			if c == '/' && i+1 < len(q) && q[i+1] == '*' {
				state = sBC
				buf.WriteString("/*")
				i += 2
				continue
			}
			if c == '\'' {
				state = sSQ
				buf.WriteByte(c)
				i++
				continue
			}
			if c == '"' {
				state = sDQ
				buf.WriteByte(c)
				i++
				continue
			}
			if c == '`' && (dialect == MySQL || dialect == SQLite) {
				state = sBT
				buf.WriteByte(c)
				i++
				continue
			}
			if c == '[' && dialect == SQLServer {
				state = sBR
				buf.WriteByte(c)
				i++
				continue
			}
			if c == '$' {
				if tag, ok := readDollarTag(q[i:]); ok {
					state = sDQD
					dqTag = tag
					buf.WriteString(tag)
					i += len(tag)
					continue
				}
			}

			if c == '%' && i+1 < len(q) && q[i+1] == '%' {
				buf.WriteByte('%')
				i += 2
				continue
			}

			// %(name)s
			if c == '%' && i+1 < len(q) && q[i+1] == '(' {
				name, next, ok := readName(q, i+2)
				if !ok {
					return "", nil, fmt.Errorf("%w: at offset %d", ErrPlaceholderMalformed, i)
				}
				if lim.MaxNameLen > 0 && len(name) > lim.MaxNameLen {
					return "", nil, fmt.Errorf("%w: %q (%d > %d)", ErrParamNameTooLong, name, len(name), lim.MaxNameLen)
				}

				v, ok := params[name]
				if !ok {
					return "", nil, fmt.Errorf("%w: %s", ErrParamMissing, name)
				}

				// Scalar / driver.Valuer / []byte → single placeholder
				if s, ok := v.(scalar); ok {
					if err := ensureAdd(n, 1); err != nil {
						return "", nil, err
					}
					emit(s.v)
					i = next
					continue
				}
				if _, ok := v.(driver.Valuer); ok {
					if err := ensureAdd(n, 1); err != nil {
						return "", nil, err
					}
					emit(v)
					i = next
					continue
				}
				if bs, ok := v.([]byte); ok {
					if err := ensureAdd(n, 1); err != nil {
						return "", nil, err
					}
					emit(bs)
					i = next
					continue
				}

				rv := reflect.ValueOf(v)
				if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
					if rv.Type().Elem().Kind() == reflect.Uint8 {
						// Byte-slice aliases bind as a single []byte.
						if err := ensureAdd(n, 1); err != nil {
							return "", nil, err
						}
						if rv.Kind() == reflect.Slice && rv.Type().ConvertibleTo(bytesType) {
							emit(rv.Convert(bytesType).Interface())
						} else {
							emit(v)
						}
						i = next
						continue
					}
					ln := rv.Len()
					if ln == 0 {
						return "", nil, fmt.Errorf("%w: %s", ErrSliceEmpty, name)
					}
					if err := ensureAdd(n, ln); err != nil {
						return "", nil, err
					}
					// Expanded lists carry their own parentheses: "IN %(ids)s".
					buf.WriteByte('(')
					for t := 0; t < ln; t++ {
						if t > 0 {
							buf.WriteString(", ")
						}
						emit(rv.Index(t).Interface())
					}
					buf.WriteByte(')')
					i = next
					continue
				}

				if err := ensureAdd(n, 1); err != nil {
					return "", nil, err
				}
				emit(v)
				i = next
				continue
			}

			buf.WriteByte(c)
			i++

		case sSQ:
			if c == '\\' {
				buf.WriteByte(c)
				i++
				if i < len(q) {
					buf.WriteByte(q[i])
					i++
				}
				continue
			}
			buf.WriteByte(c)
			i++
			if c == '\'' {
				if i < len(q) && q[i] == '\'' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sDQ:
			buf.WriteByte(c)
			i++
			if c == '"' {
				if i < len(q) && q[i] == '"' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sBT:
			buf.WriteByte(c)
			i++
			if c == '`' {
				if i < len(q) && q[i] == '`' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sBR:
			buf.WriteByte(c)
			i++
			if c == ']' {
				if i < len(q) && q[i] == ']' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sLC:
			buf.WriteByte(c)
			i++
			if c == '\n' || c == '\r' {
				state = sText
			}

		case sBC:
			buf.WriteByte(c)
			i++
			if c == '*' && i < len(q) && q[i] == '/' {
				buf.WriteByte('/')
				i++
				state = sText
			}

		case sDQD:
			p := strings.Index(q[i:], dqTag)
			if p < 0 {
				buf.WriteString(q[i:])
				i = len(q)
			} else {
				buf.WriteString(q[i : i+p])
				buf.WriteString(dqTag)
				i += p + len(dqTag)
				dqTag = ""
				state = sText
			}
		}
	}

	return buf.String(), args, nil
}

var bytesType = reflect.TypeOf([]byte(nil))

// writePlaceholder emits a dialect-specific placeholder token for argument idx.
func writePlaceholder(b *strings.Builder, d Dialect, idx int) {
	switch d {
	case Postgres:
		b.WriteByte('$')
		var tmp [20]byte
		b.Write(strconv.AppendInt(tmp[:0], int64(idx), 10))
	case SQLServer:
		b.WriteString("@p")
		var tmp [20]byte
		b.Write(strconv.AppendInt(tmp[:0], int64(idx), 10))
	default: // MySQL, SQLite
		b.WriteByte('?')
	}
}

// readName parses the body of a %(name)s placeholder starting right after
// "%(". It returns the name, the index after the trailing 's' and whether
// the placeholder was well formed.
func readName(q string, i int) (string, int, bool) {
	end := strings.IndexByte(q[i:], ')')
	if end <= 0 {
		return "", -1, false
	}
	name := q[i : i+end]
	j := i + end + 1
	if j >= len(q) || q[j] != 's' {
		return "", -1, false
	}
	for k := 0; k < len(name); k++ {
		if name[k] == '(' || name[k] == '\n' {
			return "", -1, false
		}
	}
	return name, j + 1, true
}

// isAlphaNumUnderscore reports whether b is [A-Za-z0-9_] .
func isAlphaNumUnderscore(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '_'
}

// readDollarTag detects a dollar-quoted opening tag ("$tag$") at the start of s.
// It returns the full tag (e.g. "$tag$") and true if found.
func readDollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	j := 1
	for j < len(s) && isAlphaNumUnderscore(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[:j+1], true
	}
	return "", false
}

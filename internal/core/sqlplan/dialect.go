package sqlplan

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
)

// Dialect renders identifiers and literals and reports what a backend can do.
type Dialect interface {
	Name() string
	// SupportsGroupingSets reports native GROUP BY GROUPING SETS support.
	SupportsGroupingSets() bool
	// TypedNullsInUnion reports whether NULL placeholders in UNION branches
	// need an explicit type.
	TypedNullsInUnion() bool
	// LooselyTyped reports whether a column may hold values of any type,
	// such as empty strings in numeric columns.
	LooselyTyped() bool
	QuoteIdent(name string) string
	Literal(c domain.Constant) string
}

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

type postgresDialect struct{}

func (postgresDialect) Name() string               { return "postgres" }
func (postgresDialect) SupportsGroupingSets() bool { return true }
func (postgresDialect) TypedNullsInUnion() bool    { return true }
func (postgresDialect) LooselyTyped() bool         { return false }
func (postgresDialect) QuoteIdent(name string) string {
	return quoteIdent(name)
}

func (postgresDialect) Literal(c domain.Constant) string {
	switch c.Kind() {
	case domain.KindBool:
		if c.Value().(bool) {
			return "TRUE"
		}
		return "FALSE"
	case domain.KindFloat:
		f := c.Value().(float64)
		if name, ok := domain.NonFiniteName(f); ok {
			return "CAST(" + quoteString(name) + " AS DOUBLE PRECISION)"
		}
		return formatFloat(f)
	case domain.KindTime:
		return quoteString(c.Value().(time.Time).Format(time.RFC3339Nano))
	}
	return commonLiteral(c)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return "sqlite" }
func (sqliteDialect) SupportsGroupingSets() bool { return false }
func (sqliteDialect) TypedNullsInUnion() bool    { return false }
func (sqliteDialect) LooselyTyped() bool         { return true }
func (sqliteDialect) QuoteIdent(name string) string {
	return quoteIdent(name)
}

func (sqliteDialect) Literal(c domain.Constant) string {
	switch c.Kind() {
	case domain.KindBool:
		if c.Value().(bool) {
			return "1"
		}
		return "0"
	case domain.KindFloat:
		f := c.Value().(float64)
		if math.IsNaN(f) {
			return "NULL"
		}
		if math.IsInf(f, 1) {
			return "9e999"
		}
		if math.IsInf(f, -1) {
			return "-9e999"
		}
		return formatFloat(f)
	case domain.KindTime:
		// Dates are stored as text; midnight renders date-only so it
		// compares correctly against both DATE and DATETIME text.
		t := c.Value().(time.Time)
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return quoteString(t.Format(time.DateOnly))
		}
		return quoteString(t.Format(domain.TimeLayout))
	}
	return commonLiteral(c)
}

func commonLiteral(c domain.Constant) string {
	switch c.Kind() {
	case domain.KindNull:
		return "NULL"
	case domain.KindInt:
		return strconv.FormatInt(c.Value().(int64), 10)
	case domain.KindString:
		return quoteString(c.Value().(string))
	case domain.KindDecimal:
		return c.Value().(decimal.Decimal).String()
	}
	return c.String()
}

// formatFloat always emits a decimal point so integral floats stay floats
// in arithmetic.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

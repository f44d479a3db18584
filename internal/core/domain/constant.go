package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ConstantKind identifies the Go type held by a Constant.
type ConstantKind int

const (
	KindNull ConstantKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindDecimal
)

// TimeLayout is the neutral rendering of temporal constants.
const TimeLayout = "2006-01-02 15:04:05.999999999"

// Constant is a typed literal taken from or compared against a column.
// The zero value is NULL.
type Constant struct {
	kind  ConstantKind
	value any
}

// NewConstant normalizes a driver value into a Constant. Integer types
// become int64, float32 becomes float64 and []byte becomes a string. Values
// of any other type are kept by their fmt rendering.
func NewConstant(v any) Constant {
	switch x := v.(type) {
	case nil:
		return Null()
	case Constant:
		return x
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Int(int64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		return Int(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case string:
		return String(x)
	case []byte:
		return String(string(x))
	case time.Time:
		return Time(x)
	case decimal.Decimal:
		return Decimal(x)
	case *decimal.Decimal:
		if x == nil {
			return Null()
		}
		return Decimal(*x)
	default:
		return String(fmt.Sprint(x))
	}
}

func Null() Constant                     { return Constant{} }
func Bool(v bool) Constant               { return Constant{kind: KindBool, value: v} }
func Int(v int64) Constant               { return Constant{kind: KindInt, value: v} }
func Float(v float64) Constant           { return Constant{kind: KindFloat, value: v} }
func String(v string) Constant           { return Constant{kind: KindString, value: v} }
func Time(v time.Time) Constant          { return Constant{kind: KindTime, value: v} }
func Decimal(v decimal.Decimal) Constant { return Constant{kind: KindDecimal, value: v} }

func (c Constant) Kind() ConstantKind { return c.kind }
func (c Constant) IsNull() bool       { return c.kind == KindNull }

// Value returns the underlying Go value, nil for NULL.
func (c Constant) Value() any { return c.value }

// Equal reports whether both constants have the same kind and value.
// NULL equals NULL.
func (c Constant) Equal(o Constant) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindNull:
		return true
	case KindTime:
		return c.value.(time.Time).Equal(o.value.(time.Time))
	case KindDecimal:
		return c.value.(decimal.Decimal).Equal(o.value.(decimal.Decimal))
	default:
		return c.value == o.value
	}
}

// String renders the constant as a backend-neutral SQL literal.
func (c Constant) String() string {
	switch c.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		if c.value.(bool) {
			return "TRUE"
		}
		return "FALSE"
	case KindInt:
		return strconv.FormatInt(c.value.(int64), 10)
	case KindFloat:
		f := c.value.(float64)
		if name, ok := NonFiniteName(f); ok {
			return "CAST(" + quote(name) + " AS DOUBLE PRECISION)"
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case KindString:
		return quote(c.value.(string))
	case KindTime:
		return quote(c.value.(time.Time).Format(TimeLayout))
	case KindDecimal:
		return c.value.(decimal.Decimal).String()
	}
	return ""
}

func (c Constant) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case KindNull:
		return []byte("null"), nil
	case KindTime:
		return json.Marshal(c.value.(time.Time).Format(time.RFC3339Nano))
	case KindDecimal:
		return []byte(c.value.(decimal.Decimal).String()), nil
	case KindFloat:
		if name, ok := NonFiniteName(c.value.(float64)); ok {
			return json.Marshal(name)
		}
		return json.Marshal(c.value)
	default:
		return json.Marshal(c.value)
	}
}

// NonFiniteName spells NaN and the infinities the way SQL float input
// accepts them. ok is false for finite values.
func NonFiniteName(f float64) (name string, ok bool) {
	switch {
	case math.IsNaN(f):
		return "NaN", true
	case math.IsInf(f, 1):
		return "Infinity", true
	case math.IsInf(f, -1):
		return "-Infinity", true
	}
	return "", false
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Float64 converts numeric constants, and numeric text, to float64.
func (c Constant) Float64() (float64, error) {
	switch c.kind {
	case KindInt:
		return float64(c.value.(int64)), nil
	case KindFloat:
		return c.value.(float64), nil
	case KindDecimal:
		return c.value.(decimal.Decimal).InexactFloat64(), nil
	case KindString:
		d, err := decimal.NewFromString(strings.TrimSpace(c.value.(string)))
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidArgument, c.value)
		}
		return d.InexactFloat64(), nil
	}
	return 0, fmt.Errorf("%w: %s constant is not numeric", ErrInvalidArgument, c.kind)
}

// Int64 converts integral constants to int64. Floats and decimals are
// accepted only when they carry no fractional part.
func (c Constant) Int64() (int64, error) {
	switch c.kind {
	case KindInt:
		return c.value.(int64), nil
	case KindFloat, KindDecimal, KindString:
		f, err := c.Float64()
		if err != nil {
			return 0, err
		}
		if f != float64(int64(f)) {
			return 0, fmt.Errorf("%w: %v is not integral", ErrInvalidArgument, f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("%w: %s constant is not numeric", ErrInvalidArgument, c.kind)
}

func (k ConstantKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindDecimal:
		return "decimal"
	}
	return "unknown"
}

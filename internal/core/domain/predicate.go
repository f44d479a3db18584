package domain

import "strings"

// Operator is a comparison operator, spelled the way SQL spells it.
type Operator string

const (
	Equals         Operator = "="
	NotEquals      Operator = "<>"
	GreaterThan    Operator = ">"
	LessThan       Operator = "<"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
)

func (o Operator) Valid() bool {
	switch o {
	case Equals, NotEquals, GreaterThan, LessThan, GreaterOrEqual, LessOrEqual:
		return true
	}
	return false
}

// Predicate compares one column against a constant.
type Predicate struct {
	Column   Column   `json:"column"`
	Operator Operator `json:"operator"`
	Constant Constant `json:"value"`
}

func NewPredicate(col Column, op Operator, c Constant) Predicate {
	return Predicate{Column: col, Operator: op, Constant: c}
}

// String renders the predicate as a backend-neutral comparison such as
// voltage = 2.3 or sensor_id = '3'.
func (p Predicate) String() string {
	if p.Constant.IsNull() {
		switch p.Operator {
		case Equals:
			return string(p.Column) + " IS NULL"
		case NotEquals:
			return string(p.Column) + " IS NOT NULL"
		}
	}
	return string(p.Column) + " " + string(p.Operator) + " " + p.Constant.String()
}

// Conjunction renders predicates joined by AND.
func Conjunction(preds []Predicate) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}

package domain

import "fmt"

// AggregateFunction is the SQL aggregate applied per group.
type AggregateFunction string

const (
	Sum     AggregateFunction = "SUM"
	Count   AggregateFunction = "COUNT"
	Average AggregateFunction = "AVG"
)

// Aggregate computes Function(Source) AS Alias for every group.
type Aggregate struct {
	Function AggregateFunction
	Source   Column
	Alias    Column
}

// CountRows is COUNT(*) AS alias.
func CountRows(alias Column) Aggregate {
	return Aggregate{Function: Count, Source: AllRows, Alias: alias}
}

func (a Aggregate) Validate() error {
	switch a.Function {
	case Sum, Count, Average:
	default:
		return fmt.Errorf("%w: unknown aggregate function %q", ErrInvalidArgument, a.Function)
	}
	if a.Source == "" {
		return fmt.Errorf("%w: aggregate source is empty", ErrInvalidColumn)
	}
	if a.Source == AllRows && a.Function != Count {
		return fmt.Errorf("%w: %s(*) is not defined", ErrInvalidArgument, a.Function)
	}
	if a.Alias == "" {
		return fmt.Errorf("%w: aggregate alias is empty", ErrInvalidColumn)
	}
	return nil
}

package domain

import (
	"fmt"
	"math"
)

// DiffRequest describes one explanation run.
type DiffRequest struct {
	Test    Relation
	Control Relation
	// ValueColumns are explained by equality on their values.
	ValueColumns []Column
	// RangeColumns are explained by intervals computed from the test relation.
	RangeColumns []Column
	MinSupport   float64
	MinRiskRatio float64
	MaxOrder     int
}

// Validate checks everything that can be checked without touching a backend.
// An unsupported order is reported before anything else.
func (r DiffRequest) Validate() error {
	if r.MaxOrder != 1 {
		return fmt.Errorf("%w: got %d", ErrUnsupportedOrder, r.MaxOrder)
	}
	if r.Test.IsZero() {
		return fmt.Errorf("%w: test relation is empty", ErrInvalidArgument)
	}
	if r.Control.IsZero() {
		return fmt.Errorf("%w: control relation is empty", ErrInvalidArgument)
	}
	if math.IsNaN(r.MinSupport) || r.MinSupport < 0 || r.MinSupport > 1 {
		return fmt.Errorf("%w: min_support must be in [0, 1], got %v", ErrInvalidArgument, r.MinSupport)
	}
	if math.IsNaN(r.MinRiskRatio) || r.MinRiskRatio <= 0 {
		return fmt.Errorf("%w: min_risk_ratio must be positive, got %v", ErrInvalidArgument, r.MinRiskRatio)
	}
	if err := uniqueColumns("value", r.ValueColumns); err != nil {
		return err
	}
	return uniqueColumns("range", r.RangeColumns)
}

// MinSupportRows is floor(T * min_support); test groups must exceed it.
func (r DiffRequest) MinSupportRows(testRows int64) int64 {
	return int64(math.Floor(float64(testRows) * r.MinSupport))
}

func uniqueColumns(kind string, cols []Column) error {
	seen := make(map[Column]struct{}, len(cols))
	for _, c := range cols {
		if c == "" {
			return fmt.Errorf("%w: empty %s column", ErrInvalidColumn, kind)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: %s column %q listed twice", ErrInvalidColumn, kind, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

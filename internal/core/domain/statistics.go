package domain

import "encoding/json"

// ColumnStatistic is either SetValued or RangeValued.
type ColumnStatistic interface {
	isColumnStatistic()
}

// SetValued describes a column by its most frequent values.
type SetValued struct {
	DistinctCount int64 `json:"distinct_count"`
	// MostCommonValues is ordered by frequency descending, then value ascending.
	MostCommonValues []Constant       `json:"most_common_values"`
	Cardinality      CardinalityClass `json:"cardinality"`
}

// RangeValued holds the ascending, de-duplicated minimums of equal-frequency
// partitions of a column.
type RangeValued struct {
	BucketMinimums []Constant `json:"bucket_minimums"`
}

func (SetValued) isColumnStatistic()   {}
func (RangeValued) isColumnStatistic() {}

func (s SetValued) MarshalJSON() ([]byte, error) {
	type plain SetValued
	return json.Marshal(struct {
		Kind string `json:"kind"`
		plain
	}{"set_valued", plain(s)})
}

func (r RangeValued) MarshalJSON() ([]byte, error) {
	type plain RangeValued
	return json.Marshal(struct {
		Kind string `json:"kind"`
		plain
	}{"range_valued", plain(r)})
}

// ColumnStatistics groups every statistic computed for one column.
type ColumnStatistics struct {
	Column       Column            `json:"column"`
	DeclaredType string            `json:"declared_type"`
	Class        TypeClass         `json:"class"`
	Statistics   []ColumnStatistic `json:"statistics"`
}

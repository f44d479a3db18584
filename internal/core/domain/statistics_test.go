package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnStatistics_JSON(t *testing.T) {
	t.Parallel()
	stats := ColumnStatistics{
		Column:       "sensor_id",
		DeclaredType: "integer",
		Class:        TypeClassBoth,
		Statistics: []ColumnStatistic{
			SetValued{DistinctCount: 2, MostCommonValues: []Constant{Int(3), Int(1)}, Cardinality: CardinalityEnumLike},
			RangeValued{BucketMinimums: []Constant{Int(1), Int(3)}},
		},
	}
	out, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"column": "sensor_id",
		"declared_type": "integer",
		"class": "both",
		"statistics": [
			{"kind": "set_valued", "distinct_count": 2, "most_common_values": [3, 1], "cardinality": "enum_like"},
			{"kind": "range_valued", "bucket_minimums": [1, 3]}
		]
	}`, string(out))
}

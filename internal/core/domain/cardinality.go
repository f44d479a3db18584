package domain

// CardinalityClass summarizes how many distinct values a set-valued column
// holds relative to its rows. Columns near unique rarely make useful value
// explanations since every group is tiny.
type CardinalityClass string

const (
	CardinalityUnique          CardinalityClass = "unique"
	CardinalityNearUnique      CardinalityClass = "near_unique"
	CardinalityHighCardinality CardinalityClass = "high_cardinality"
	CardinalityLowCardinality  CardinalityClass = "low_cardinality"
	CardinalityEnumLike        CardinalityClass = "enum_like"
)

const (
	nearUniqueRatio = 0.9
	enumLikeMax     = 20
	lowCardinality  = 200
)

// ClassifyByDistinctCount labels a set-valued column from its COUNT(DISTINCT)
// and the row count of the relation it was computed over.
func ClassifyByDistinctCount(distinct, rows int64) CardinalityClass {
	switch {
	case rows > 0 && distinct == rows:
		return CardinalityUnique
	case rows > 0 && float64(distinct)/float64(rows) >= nearUniqueRatio:
		return CardinalityNearUnique
	case distinct <= enumLikeMax:
		return CardinalityEnumLike
	case distinct <= lowCardinality:
		return CardinalityLowCardinality
	default:
		return CardinalityHighCardinality
	}
}

package domain

import (
	"fmt"
	"strings"
)

// BucketSuffix is appended to a column name to name its bucket column.
const BucketSuffix = "__bucket"

// BucketColumn names the derived ordinal column of a bucketed column.
func BucketColumn(c Column) Column {
	return c + BucketSuffix
}

// IsBucketColumn reports whether c looks like a derived bucket column.
func IsBucketColumn(c Column) bool {
	return strings.HasSuffix(string(c), BucketSuffix)
}

// Bucket is one half-open interval of a bucketed column. Open-ended buckets
// hold one predicate, interior buckets two.
type Bucket struct {
	Ordinal    int
	Predicates []Predicate
}

// Bucketing maps bucket ordinals of one column back to predicates.
type Bucketing struct {
	Column  Column
	Buckets []Bucket
}

// BucketsFromMinimums turns partition minimums [m0, m1, ..., mk] into the
// intervals (-inf, m1), [m1, m2), ..., [mk, +inf). The leftmost minimum is
// dropped so control values below the test minimum land in bucket 0. Fewer
// than two minimums give a single always-true bucket, reported as !ok.
func BucketsFromMinimums(col Column, minimums []Constant) (Bucketing, bool) {
	if len(minimums) < 2 {
		return Bucketing{}, false
	}
	bounds := minimums[1:]
	buckets := make([]Bucket, 0, len(bounds)+1)
	buckets = append(buckets, Bucket{
		Ordinal:    0,
		Predicates: []Predicate{NewPredicate(col, LessThan, bounds[0])},
	})
	for i := 0; i+1 < len(bounds); i++ {
		buckets = append(buckets, Bucket{
			Ordinal: i + 1,
			Predicates: []Predicate{
				NewPredicate(col, GreaterOrEqual, bounds[i]),
				NewPredicate(col, LessThan, bounds[i+1]),
			},
		})
	}
	buckets = append(buckets, Bucket{
		Ordinal:    len(bounds),
		Predicates: []Predicate{NewPredicate(col, GreaterOrEqual, bounds[len(bounds)-1])},
	})
	return Bucketing{Column: col, Buckets: buckets}, true
}

func (b Bucketing) BucketColumn() Column {
	return BucketColumn(b.Column)
}

// Predicates returns the conjunction selecting the rows of an ordinal.
func (b Bucketing) Predicates(ordinal int) ([]Predicate, error) {
	if ordinal < 0 || ordinal >= len(b.Buckets) {
		return nil, fmt.Errorf("%w: bucket %d of %s", ErrInvalidArgument, ordinal, b.Column)
	}
	return b.Buckets[ordinal].Predicates, nil
}

// String shows the interval boundaries, e.g. voltage[(-inf, 2.6), [2.6, +inf)].
func (b Bucketing) String() string {
	parts := make([]string, len(b.Buckets))
	for i, bucket := range b.Buckets {
		lo, hi := "(-inf", "+inf)"
		for _, p := range bucket.Predicates {
			switch p.Operator {
			case GreaterOrEqual:
				lo = "[" + p.Constant.String()
			case LessThan:
				hi = p.Constant.String() + ")"
			}
		}
		parts[i] = lo + ", " + hi
	}
	return string(b.Column) + "[" + strings.Join(parts, ", ") + "]"
}

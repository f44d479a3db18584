package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

const (
	DefaultRangeBuckets = 15

	bucketSource = "original_query"
)

// Bucketize computes equal-frequency interval buckets for columns of rel.
// Columns whose values fall into a single bucket are left out.
func (e *StatisticsEngine) Bucketize(ctx context.Context, rel domain.Relation, columns []domain.Column, numBuckets int) ([]domain.Bucketing, error) {
	stats, err := e.RangeValuedStatistics(ctx, rel, columns, numBuckets)
	if err != nil {
		return nil, err
	}
	var out []domain.Bucketing
	for _, c := range columns {
		b, ok := domain.BucketsFromMinimums(c, stats[c].BucketMinimums)
		if !ok {
			e.logger.DebugContext(ctx, "column has a single bucket, skipping",
				slog.String("column", string(c)),
			)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// RewriteWithBuckets appends one integer column per bucketing holding the
// ordinal of the first interval the row falls into, NULL for NULL values.
func RewriteWithBuckets(source sqlplan.Query, bucketings []domain.Bucketing) (sqlplan.Query, error) {
	if len(bucketings) == 0 {
		return source, nil
	}
	items := []sqlplan.Item{{Expr: sqlplan.AllColumns{Table: bucketSource}}}
	for _, b := range bucketings {
		if len(b.Buckets) == 0 {
			return nil, fmt.Errorf("%w: bucketing of %s has no buckets", domain.ErrInvalidArgument, b.Column)
		}
		whens := make([]sqlplan.When, len(b.Buckets))
		for i, bucket := range b.Buckets {
			whens[i] = sqlplan.When{
				Cond: sqlplan.Conjunction(bucket.Predicates),
				Then: sqlplan.L(bucket.Ordinal),
			}
		}
		items = append(items, sqlplan.Item{
			Expr: sqlplan.Case{Whens: whens},
			As:   string(b.BucketColumn()),
		})
	}
	return sqlplan.With{
		CTEs: []sqlplan.CTE{{Name: bucketSource, Query: source}},
		Body: sqlplan.Select{
			Items: items,
			From:  sqlplan.TableRef{Name: bucketSource},
		},
	}, nil
}

package service

import (
	"fmt"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
)

// Assembler turns scored rows back into explanations.
type Assembler struct {
	index   domain.GroupIndex
	order   []domain.Column
	buckets map[domain.Column]domain.Bucketing
}

// NewAssembler takes the group index of the scored plans, the order in which
// live columns contribute predicates, and the bucketings behind any bucket
// columns in that order.
func NewAssembler(index domain.GroupIndex, order []domain.Column, bucketings []domain.Bucketing) *Assembler {
	buckets := make(map[domain.Column]domain.Bucketing, len(bucketings))
	for _, b := range bucketings {
		buckets[b.BucketColumn()] = b
	}
	return &Assembler{index: index, order: order, buckets: buckets}
}

// Assemble builds the explanation of one scored row. Value columns yield an
// equality predicate, bucket columns the conjunction of their interval, and
// a NULL bucket ordinal yields column IS NULL.
func (a *Assembler) Assemble(row map[string]any) (domain.Explanation, error) {
	id, err := a.intField(row, GroupingIDColumn)
	if err != nil {
		return domain.Explanation{}, err
	}
	live, err := a.index.Lookup(int(id))
	if err != nil {
		return domain.Explanation{}, err
	}
	liveSet := make(map[domain.Column]struct{}, len(live))
	for _, c := range live {
		liveSet[c] = struct{}{}
	}

	var preds []domain.Predicate
	for _, col := range a.order {
		if _, ok := liveSet[col]; !ok {
			continue
		}
		raw, ok := row[string(col)]
		if !ok {
			return domain.Explanation{}, fmt.Errorf("%w: scored row has no column %q", domain.ErrInvalidColumn, col)
		}
		value := domain.NewConstant(raw)

		b, bucketed := a.buckets[col]
		if !bucketed {
			preds = append(preds, domain.NewPredicate(col, domain.Equals, value))
			continue
		}
		if value.IsNull() {
			preds = append(preds, domain.NewPredicate(b.Column, domain.Equals, domain.Null()))
			continue
		}
		ordinal, err := value.Int64()
		if err != nil {
			return domain.Explanation{}, fmt.Errorf("bucket ordinal of %s: %w", b.Column, err)
		}
		bucketPreds, err := b.Predicates(int(ordinal))
		if err != nil {
			return domain.Explanation{}, err
		}
		preds = append(preds, bucketPreds...)
	}

	risk, err := domain.NewConstant(row[RiskRatioColumn]).Float64()
	if err != nil {
		return domain.Explanation{}, fmt.Errorf("%s: %w", RiskRatioColumn, err)
	}
	testCount, err := a.intField(row, TestCountColumn)
	if err != nil {
		return domain.Explanation{}, err
	}
	controlCount, err := a.intField(row, ControlCountColumn)
	if err != nil {
		return domain.Explanation{}, err
	}

	return domain.Explanation{
		Predicates:   preds,
		RiskRatio:    risk,
		TestCount:    testCount,
		ControlCount: controlCount,
	}, nil
}

func (a *Assembler) intField(row map[string]any, name string) (int64, error) {
	raw, ok := row[name]
	if !ok {
		return 0, fmt.Errorf("%w: scored row has no column %q", domain.ErrInvalidColumn, name)
	}
	n, err := domain.NewConstant(raw).Int64()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

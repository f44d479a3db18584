package domain

import (
	"fmt"
	"slices"
	"strings"
)

// GroupingSet is an unordered set of columns aggregated together. Columns are
// kept in caller order.
type GroupingSet []Column

// Key identifies the set independent of column order.
func (g GroupingSet) Key() string {
	names := make([]string, len(g))
	for i, c := range g {
		names[i] = string(c)
	}
	slices.Sort(names)
	return strings.Join(names, "\x00")
}

func (g GroupingSet) Contains(c Column) bool {
	return slices.Contains(g, c)
}

// GroupIndex maps a grouping_id to the columns live in rows carrying it.
type GroupIndex map[int][]Column

// NewGroupIndex assigns each set its position in sets. Duplicate sets and
// sets repeating a column are rejected.
func NewGroupIndex(sets []GroupingSet) (GroupIndex, error) {
	idx := make(GroupIndex, len(sets))
	seen := make(map[string]int, len(sets))
	for i, set := range sets {
		cols := make(map[Column]struct{}, len(set))
		for _, c := range set {
			if c == "" {
				return nil, fmt.Errorf("%w: empty column name in grouping set %d", ErrInvalidColumn, i)
			}
			if _, dup := cols[c]; dup {
				return nil, fmt.Errorf("%w: column %q repeated in grouping set %d", ErrInvalidArgument, c, i)
			}
			cols[c] = struct{}{}
		}
		key := set.Key()
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: set %d repeats set %d", ErrDuplicateGroupingSet, i, prev)
		}
		seen[key] = i
		idx[i] = slices.Clone([]Column(set))
	}
	return idx, nil
}

// Lookup returns the live columns of a grouping id.
func (g GroupIndex) Lookup(id int) ([]Column, error) {
	cols, ok := g[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	return cols, nil
}

// SingleColumnSets builds one grouping set per column, in order.
func SingleColumnSets(cols []Column) []GroupingSet {
	sets := make([]GroupingSet, len(cols))
	for i, c := range cols {
		sets[i] = GroupingSet{c}
	}
	return sets
}

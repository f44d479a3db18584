package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupingSet_Key(t *testing.T) {
	t.Parallel()
	assert.Equal(t, GroupingSet{"a", "b"}.Key(), GroupingSet{"b", "a"}.Key())
	assert.NotEqual(t, GroupingSet{"a"}.Key(), GroupingSet{"a", "b"}.Key())
	assert.Equal(t, "", GroupingSet{}.Key())
}

func TestNewGroupIndex(t *testing.T) {
	t.Parallel()
	idx, err := NewGroupIndex([]GroupingSet{{"a"}, {"b", "a"}, {}})
	require.NoError(t, err)
	assert.Equal(t, GroupIndex{0: {"a"}, 1: {"b", "a"}, 2: {}}, idx)

	cols, err := idx.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, []Column{"b", "a"}, cols)

	_, err = idx.Lookup(3)
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestNewGroupIndex_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sets []GroupingSet
		want error
	}{
		{"duplicate set", []GroupingSet{{"a", "b"}, {"b", "a"}}, ErrDuplicateGroupingSet},
		{"duplicate empty set", []GroupingSet{{}, {}}, ErrDuplicateGroupingSet},
		{"repeated column", []GroupingSet{{"a", "a"}}, ErrInvalidArgument},
		{"empty column", []GroupingSet{{""}}, ErrInvalidColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGroupIndex(tt.sets)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSingleColumnSets(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []GroupingSet{{"x"}, {"y"}}, SingleColumnSets([]Column{"x", "y"}))
}

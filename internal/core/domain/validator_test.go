package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgQueryValidator_Validate(t *testing.T) {
	t.Parallel()
	v := NewPgQueryValidator()
	tests := []struct {
		name string
		sql  string
		want error
	}{
		{"select", "SELECT * FROM sensors WHERE temperature > 50", nil},
		{"cte", "WITH x AS (SELECT 1 AS a) SELECT a FROM x", nil},
		{"union", "SELECT 1 UNION ALL SELECT 2", nil},
		{"empty", "   ", ErrEmptyQuery},
		{"insert", "INSERT INTO t VALUES (1)", ErrNotAllowed},
		{"explain", "EXPLAIN SELECT 1", ErrNotAllowed},
		{"select into", "SELECT * INTO copy FROM t", ErrNotAllowed},
		{"two statements", "SELECT 1; SELECT 2", ErrMultiStatement},
		{"garbage", "SELEC 1", ErrParseFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.sql)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPgQueryValidator_ValidateRelation(t *testing.T) {
	t.Parallel()
	v := NewPgQueryValidator()
	assert.NoError(t, v.ValidateRelation(TableRelation("public.sensors")))
	assert.NoError(t, v.ValidateRelation(QueryRelation("SELECT 1;")))
	assert.ErrorIs(t, v.ValidateRelation(QueryRelation("DELETE FROM t")), ErrNotAllowed)
}

package port

import "github.com/guillermoBallester/whydiff/internal/core/domain"

// QueryValidator validates SQL statements before execution.
type QueryValidator interface {
	Validate(sql string) error
}

// RelationValidator validates a relation before it is wrapped into
// generated queries.
type RelationValidator interface {
	ValidateRelation(r domain.Relation) error
}

package domain

import "strings"

// Relation is a table or an ad-hoc SELECT whose rows are explained or
// compared.
type Relation struct {
	query bool
	text  string
}

// TableRelation references a table by name, optionally schema-qualified.
func TableRelation(name string) Relation {
	return Relation{text: strings.TrimSpace(name)}
}

// QueryRelation wraps a SELECT statement.
func QueryRelation(sql string) Relation {
	return Relation{query: true, text: strings.TrimRight(strings.TrimSpace(sql), ";")}
}

func (r Relation) IsQuery() bool { return r.query }
func (r Relation) IsZero() bool  { return r.text == "" }

// Text is the table name or the query text.
func (r Relation) Text() string { return r.text }

func (r Relation) String() string {
	if r.query {
		return "(" + r.text + ")"
	}
	return r.text
}

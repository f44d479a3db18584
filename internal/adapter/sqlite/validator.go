package sqlite

import (
	"fmt"
	"strings"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
)

// Validator checks that a relation query is a single SELECT in SQLite's
// dialect. It tokenizes instead of parsing: quoted strings, quoted
// identifiers and comments are skipped, and only top-level keywords decide.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

type token struct {
	word      string // upper-cased keyword or identifier; empty for ';'
	depth     int
	semicolon bool
}

// Validate rejects anything that isn't a single SELECT, VALUES or
// WITH ... SELECT statement.
func (v *Validator) Validate(sql string) error {
	toks, err := tokenize(sql)
	if err != nil {
		return err
	}

	var words []token
	for i, t := range toks {
		if t.semicolon {
			if len(words) == 0 {
				continue
			}
			for _, rest := range toks[i+1:] {
				if !rest.semicolon {
					return domain.ErrMultiStatement
				}
			}
			break
		}
		words = append(words, t)
	}
	if len(words) == 0 {
		return domain.ErrEmptyQuery
	}

	switch words[0].word {
	case "SELECT", "VALUES":
		return nil
	case "WITH":
		// The statement body is the first top-level DML keyword after the CTEs.
		for _, t := range words[1:] {
			if t.depth != 0 {
				continue
			}
			switch t.word {
			case "SELECT", "VALUES":
				return nil
			case "INSERT", "UPDATE", "DELETE", "REPLACE":
				return domain.ErrNotAllowed
			}
		}
		return fmt.Errorf("%w: WITH without a statement", domain.ErrParseFailed)
	default:
		return domain.ErrNotAllowed
	}
}

// ValidateRelation validates query relations. Table relations pass.
func (v *Validator) ValidateRelation(r domain.Relation) error {
	if !r.IsQuery() {
		return nil
	}
	return v.Validate(r.Text())
}

func tokenize(sql string) ([]token, error) {
	var (
		toks  []token
		depth int
	)
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				return toks, checkDepth(depth)
			}
			i += end + 1
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated comment", domain.ErrParseFailed)
			}
			i += end + 4
		case c == '\'' || c == '"' || c == '`':
			n, err := skipQuoted(sql[i:], c, c)
			if err != nil {
				return nil, err
			}
			i += n
		case c == '[':
			n, err := skipQuoted(sql[i:], '[', ']')
			if err != nil {
				return nil, err
			}
			i += n
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced parentheses", domain.ErrParseFailed)
			}
			i++
		case c == ';':
			toks = append(toks, token{depth: depth, semicolon: true})
			i++
		case isWordStart(c):
			start := i
			for i < len(sql) && isWordPart(sql[i]) {
				i++
			}
			toks = append(toks, token{word: strings.ToUpper(sql[start:i]), depth: depth})
		case isDigit(c):
			for i < len(sql) && isWordPart(sql[i]) {
				i++
			}
		default:
			i++
		}
	}
	return toks, checkDepth(depth)
}

// skipQuoted returns the length of the quoted run at the start of s. A
// doubled closing quote is an escaped quote, except for brackets.
func skipQuoted(s string, open, close byte) (int, error) {
	for i := 1; i < len(s); i++ {
		if s[i] != close {
			continue
		}
		if open == close && i+1 < len(s) && s[i+1] == close {
			i++
			continue
		}
		return i + 1, nil
	}
	return 0, fmt.Errorf("%w: unterminated %c", domain.ErrParseFailed, open)
}

func checkDepth(depth int) error {
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced parentheses", domain.ErrParseFailed)
	}
	return nil
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '$'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

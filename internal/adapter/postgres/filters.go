package postgres

import "fmt"

// systemSchemas never hold relations worth explaining.
const systemSchemas = `'pg_catalog', 'information_schema', 'pg_toast'`

// schemaFilter restricts column to the configured schemas, passed as one
// text[] parameter $param, or to every non-system schema when none are set.
func schemaFilter(schemas []string, column string, param int) (clause string, args []any) {
	if len(schemas) == 0 {
		return fmt.Sprintf("%s NOT IN (%s)", column, systemSchemas), nil
	}
	return fmt.Sprintf("%s = ANY($%d)", column, param), []any{schemas}
}

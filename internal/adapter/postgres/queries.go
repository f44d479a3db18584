package postgres

// queryResolveSchema resolves the schema of an unqualified relation name,
// preferring search_path order. $1 = relation name; schema filter
// placeholder at %s starts at $2.
const queryResolveSchema = `
	SELECT n.nspname
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relname = $1 AND c.relkind IN ('r', 'p', 'v', 'm') AND %s
	ORDER BY array_position(current_schemas(false), n.nspname) NULLS LAST, n.nspname
	LIMIT 1`

// queryColumnTypes fetches column names and declared types in declaration
// order. $1 = schema, $2 = relation name.
const queryColumnTypes = `
	SELECT a.attname, pg_catalog.format_type(a.atttypid, a.atttypmod)
	FROM pg_attribute a
	JOIN pg_class c ON c.oid = a.attrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2 AND a.attnum > 0 AND NOT a.attisdropped
	ORDER BY a.attnum`

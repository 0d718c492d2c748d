package dberror

var postgresCodes = map[string]Kind{
	"23505": DuplicateKey,
	"23503": ForeignKeyViolation,
	"23502": NotNullViolation,
	"23514": CheckViolation,
	"40P01": Deadlock,
	"40001": Retryable,
	"55P03": Retryable,
}

// Postgres recognises pgconn.PgError (pgx) and pq.Error (lib/pq).
type Postgres struct{}

func (Postgres) Provider() string { return "postgres" }

func (Postgres) Classify(err error) (*Info, bool) {
	if v, ok := findByName(err, "pgconn", "PgError"); ok {
		code := fieldString(v, "Code")
		kind, known := postgresCodes[code]
		if !known {
			return nil, false
		}
		return &Info{
			Kind:       kind,
			Message:    fieldString(v, "Message"),
			SQLState:   code,
			Constraint: fieldString(v, "ConstraintName"),
			Table:      fieldString(v, "TableName"),
			Schema:     fieldString(v, "SchemaName"),
		}, true
	}

	if v, ok := findByName(err, "pq", "Error"); ok {
		code := fieldString(v, "Code")
		kind, known := postgresCodes[code]
		if !known {
			return nil, false
		}
		return &Info{
			Kind:       kind,
			Message:    fieldString(v, "Message"),
			SQLState:   code,
			Constraint: fieldString(v, "Constraint"),
			Table:      fieldString(v, "Table"),
			Schema:     fieldString(v, "Schema"),
		}, true
	}
	return nil, false
}

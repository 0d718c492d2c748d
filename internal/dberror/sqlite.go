package dberror

// Extended result codes; busy and locked are primary codes.
var sqliteCodes = map[int]Kind{
	2067: DuplicateKey, // SQLITE_CONSTRAINT_UNIQUE
	1555: DuplicateKey, // SQLITE_CONSTRAINT_PRIMARYKEY
	787:  ForeignKeyViolation,
	1299: NotNullViolation,
	275:  CheckViolation,
	5:    Retryable, // SQLITE_BUSY
	6:    Retryable, // SQLITE_LOCKED
}

// SQLite recognises modernc.org/sqlite and mattn/go-sqlite3 errors.
type SQLite struct{}

func (SQLite) Provider() string { return "sqlite" }

func (SQLite) Classify(err error) (*Info, bool) {
	v, ok := findByName(err, "sqlite", "Error")
	if !ok {
		v, ok = findByName(err, "sqlite3", "Error")
	}
	if !ok {
		return nil, false
	}

	code, hasCode := methodInt(v, "Code")
	if extended, ok := fieldInt(v, "ExtendedCode"); ok {
		code, hasCode = extended, true
	}
	kind, known := Unknown, false
	if hasCode {
		if kind, known = sqliteCodes[code]; !known {
			kind, known = sqliteCodes[code&0xff]
		}
	}

	msg := err.Error()
	if !known {
		switch {
		case containsAny(msg, "UNIQUE constraint failed", "PRIMARY KEY constraint failed"):
			kind = DuplicateKey
		case containsAny(msg, "FOREIGN KEY constraint failed"):
			kind = ForeignKeyViolation
		case containsAny(msg, "NOT NULL constraint failed"):
			kind = NotNullViolation
		case containsAny(msg, "CHECK constraint failed"):
			kind = CheckViolation
		default:
			return nil, false
		}
	}
	return &Info{Kind: kind, Message: msg, Number: code}, true
}

package dberror

import "regexp"

var mysqlNumbers = map[int]Kind{
	1062: DuplicateKey,
	1451: ForeignKeyViolation,
	1452: ForeignKeyViolation,
	1048: NotNullViolation,
	3819: CheckViolation,
	1213: Deadlock,
	1205: Retryable, // lock wait timeout
}

var mysqlKey = regexp.MustCompile(`for key '([^']+)'`)

// MySQL recognises mysql.MySQLError (go-sql-driver).
type MySQL struct{}

func (MySQL) Provider() string { return "mysql" }

func (MySQL) Classify(err error) (*Info, bool) {
	v, ok := findByName(err, "mysql", "MySQLError")
	if !ok {
		return nil, false
	}
	number, _ := fieldInt(v, "Number")
	kind, known := mysqlNumbers[number]
	if !known {
		return nil, false
	}

	msg := fieldString(v, "Message")
	info := &Info{
		Kind:     kind,
		Message:  msg,
		Number:   number,
		SQLState: fieldString(v, "SQLState"),
	}
	if m := mysqlKey.FindStringSubmatch(msg); m != nil {
		info.Constraint = m[1]
	}
	return info, true
}

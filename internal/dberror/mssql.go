package dberror

import "regexp"

var sqlServerNumbers = map[int]Kind{
	2627: DuplicateKey,
	2601: DuplicateKey,
	547:  ForeignKeyViolation,
	515:  NotNullViolation,
	1205: Deadlock,
}

var (
	sqlServerConstraint = regexp.MustCompile(`(?:constraint|index) '([^']+)'`)
	sqlServerObject     = regexp.MustCompile(`(?:object|table) '([^']+)'`)
)

// SQLServer recognises mssql.Error values by name; the driver is not linked.
type SQLServer struct{}

func (SQLServer) Provider() string { return "sqlserver" }

func (SQLServer) Classify(err error) (*Info, bool) {
	v, ok := findByName(err, "mssql", "Error")
	if !ok {
		return nil, false
	}
	number, _ := fieldInt(v, "Number")
	kind, known := sqlServerNumbers[number]
	if !known {
		return nil, false
	}

	msg := fieldString(v, "Message")
	info := &Info{
		Kind:         kind,
		Message:      msg,
		Number:       number,
		ConnectionID: fieldString(v, "ServerName"),
	}
	if m := sqlServerConstraint.FindStringSubmatch(msg); m != nil {
		info.Constraint = m[1]
	}
	if m := sqlServerObject.FindStringSubmatch(msg); m != nil {
		info.Table = m[1]
	}
	return info, true
}

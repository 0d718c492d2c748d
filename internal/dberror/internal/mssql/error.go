// Package mssql mirrors the error type of the SQL Server driver so the
// classifier can be exercised without linking the driver.
package mssql

import "fmt"

// Error has the exported shape of the driver's mssql.Error.
type Error struct {
	Number     int32
	State      uint8
	Class      uint8
	Message    string
	ServerName string
	ProcName   string
	LineNo     int32
}

func (e Error) Error() string {
	return fmt.Sprintf("mssql: %s", e.Message)
}

// File: internal/records/records.go
// Package records loads the query input spreadsheet and exports results.
package records

import (
	"errors"
	"regexp"
	"time"
)

// ErrNoRecords is returned when the input spreadsheet yields no usable rows.
// Upstream treats it as input-fatal: the pipeline never starts.
var ErrNoRecords = errors.New("no valid records in input file")

// idPattern matches a mainland resident ID: 17 digits plus a digit or X.
var idPattern = regexp.MustCompile(`^\d{17}[\dXx]$`)

// QueryRecord is one row of the input spreadsheet.
type QueryRecord struct {
	// IDNumber is the 18-character resident ID to query.
	IDNumber string
	// Name is the person's name, carried through for the export.
	Name string
	// Row is the 1-based spreadsheet row this record came from.
	Row int
}

// QueryResult is the outcome of querying one record.
type QueryResult struct {
	Record    QueryRecord
	QueriedAt time.Time
	Success   bool
	CaseCount int
	Detail    string
}

// ValidID reports whether id looks like a resident ID number.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

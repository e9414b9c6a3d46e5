package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Roster is the exportable view of a subject's active enrollments.
type Roster struct {
	SubjectName  string
	SubjectCode  string
	SemesterName string
	Rows         []RosterRow
}

// RosterRow is one student line in an exported roster.
type RosterRow struct {
	RollNumber string
	FullName   string
	Email      string
	EnrolledAt string
}

var rosterHeaders = []string{"Roll Number", "Full Name", "Email", "Enrolled At"}

// CSVExporter renders rosters into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the roster.
func (e *CSVExporter) Render(roster Roster) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(rosterHeaders); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range roster.Rows {
		record := []string{row.RollNumber, row.FullName, row.Email, row.EnrolledAt}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

package qsn

import (
	"fmt"
	"strings"
)

/*
MeasurementRecord holds one row per tested copy and one column per party.
Entries are eigenvalues, +1 or -1. Each row remembers which stabilizer it
tests. The Verifier fills it while the round runs; Freeze makes it read-only.
*/
type MeasurementRecord struct {
	keys   []string
	values [][]int
	frozen bool
}

// NewMeasurementRecord allocates a record for the given row keys and party count.
// Every entry starts at +1.
func NewMeasurementRecord(rows []string, parties int) *MeasurementRecord {
	values := make([][]int, len(rows))
	for i := range values {
		values[i] = make([]int, parties)
		for j := range values[i] {
			values[i][j] = 1
		}
	}
	return &MeasurementRecord{
		keys:   append([]string(nil), rows...),
		values: values,
	}
}

// Set stores the eigenvalue reported by party for row.
func (r *MeasurementRecord) Set(row, party, eigenvalue int) error {
	if r.frozen {
		return fmt.Errorf("measurement record is frozen")
	}
	if row < 0 || row >= len(r.values) || party < 0 || party >= len(r.values[row]) {
		return fmt.Errorf("record entry [%d][%d] out of range", row, party)
	}
	if eigenvalue != 1 && eigenvalue != -1 {
		return fmt.Errorf("eigenvalue %d is not ±1", eigenvalue)
	}
	r.values[row][party] = eigenvalue
	return nil
}

// Freeze marks the record complete.
func (r *MeasurementRecord) Freeze() {
	r.frozen = true
}

// Rows returns the number of tested copies.
func (r *MeasurementRecord) Rows() int {
	return len(r.values)
}

// Key returns the stabilizer tested by row.
func (r *MeasurementRecord) Key(row int) string {
	return r.keys[row]
}

// Row returns a copy of the eigenvalues of one row.
func (r *MeasurementRecord) Row(row int) []int {
	return append([]int(nil), r.values[row]...)
}

func (r *MeasurementRecord) String() string {
	var b strings.Builder
	for i, row := range r.values {
		fmt.Fprintf(&b, "%-*s %v\n", len(r.keys[i])+1, r.keys[i], row)
	}
	return b.String()
}

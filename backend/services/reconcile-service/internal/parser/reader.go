package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"expolis/backend/services/reconcile-service/internal/models"
)

// HeaderLines is the number of header rows written by sensor nodes on top of
// every export. They are discarded without validation.
const HeaderLines = 2

const maxLineSize = 1 << 20

// Row is the outcome of parsing one data line: either a record or a malformed line.
type Row struct {
	Record    models.CandidateRecord
	Malformed *MalformedLineError
}

// Reader streams rows out of an export, in file order.
type Reader struct {
	parser   *Parser
	scanner  *bufio.Scanner
	sensorID int
	line     int
	row      Row
	err      error
}

// NewReader returns a reader producing candidate records for sensorID.
func (p *Parser) NewReader(r io.Reader, sensorID int) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{
		parser:   p,
		scanner:  scanner,
		sensorID: sensorID,
	}
}

// Next advances to the next data row. It returns false at end of input or on a
// read error, which is then available from Err.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.line < HeaderLines {
		if !r.scan() {
			return false
		}
	}
	if !r.scan() {
		return false
	}

	record, err := r.parser.Parse(r.sensorID, r.line, r.scanner.Text())
	if err != nil {
		var malformed *MalformedLineError
		if !errors.As(err, &malformed) {
			r.err = err
			return false
		}
		r.row = Row{Malformed: malformed}
		return true
	}
	r.row = Row{Record: record}
	return true
}

func (r *Reader) scan() bool {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			r.err = fmt.Errorf("read line %d: %w", r.line+1, err)
		}
		return false
	}
	r.line++
	return true
}

// Row returns the row read by the last successful call to Next.
func (r *Reader) Row() Row {
	return r.row
}

// Err returns the first read error, if any.
func (r *Reader) Err() error {
	return r.err
}

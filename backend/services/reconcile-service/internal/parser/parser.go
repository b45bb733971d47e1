package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"expolis/backend/services/reconcile-service/internal/models"
)

// Default timestamp layouts of sensor node exports and of the measurement store.
const (
	DefaultSourceFormat = "2006-01-02T15:04:05"
	DefaultStoreFormat  = "2006-01-02 15:04:05.000000"
)

const (
	fieldDelimiter = " "
	minFields      = 4
)

// ErrMalformedLine is matched by every *MalformedLineError.
var ErrMalformedLine = errors.New("malformed line")

// MalformedLineError describes a data row that cannot become a candidate record.
type MalformedLineError struct {
	Line   int
	Reason string
	Err    error
}

func (e *MalformedLineError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("malformed line %d: %s", e.Line, msg)
	}
	return fmt.Sprintf("malformed line: %s", msg)
}

func (e *MalformedLineError) Unwrap() error { return e.Err }

func (e *MalformedLineError) Is(target error) bool { return target == ErrMalformedLine }

// Formats holds the Go time layouts used to read export timestamps and to render
// them the way the store keeps them.
type Formats struct {
	Source string `yaml:"source" env:"EXPOLIS_SOURCE_TIME_FORMAT"`
	Store  string `yaml:"store" env:"EXPOLIS_STORE_TIME_FORMAT"`
}

// DefaultFormats returns the layouts used by ExpoLIS sensor nodes and database.
func DefaultFormats() Formats {
	return Formats{Source: DefaultSourceFormat, Store: DefaultStoreFormat}
}

// Parser turns export lines into candidate records.
type Parser struct {
	formats Formats
}

// New returns a parser for the given layouts.
func New(formats Formats) (*Parser, error) {
	if strings.TrimSpace(formats.Source) == "" {
		return nil, errors.New("parser: source time format is empty")
	}
	if strings.TrimSpace(formats.Store) == "" {
		return nil, errors.New("parser: store time format is empty")
	}
	return &Parser{formats: formats}, nil
}

// ParseLine splits a raw line into its fields. Decimal commas become points first,
// then the line is split on single spaces, so repeated spaces yield empty fields
// and make the line malformed.
func (p *Parser) ParseLine(line string) (models.TelemetryLine, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(strings.ReplaceAll(line, ",", "."), fieldDelimiter)
	if len(fields) < minFields {
		return models.TelemetryLine{}, &MalformedLineError{
			Reason: fmt.Sprintf("expected at least %d fields, got %d", minFields, len(fields)),
		}
	}
	for i := 0; i < minFields; i++ {
		if fields[i] == "" {
			return models.TelemetryLine{}, &MalformedLineError{Reason: fmt.Sprintf("field %d is empty", i)}
		}
	}

	return models.TelemetryLine{
		TopicNumber: fields[0],
		Timestamp:   fields[1],
		Latitude:    fields[2],
		Longitude:   fields[3],
	}, nil
}

// Parse converts one data line into a candidate record for sensorID.
// lineNo is only used to annotate errors and the record.
func (p *Parser) Parse(sensorID, lineNo int, line string) (models.CandidateRecord, error) {
	raw, err := p.ParseLine(line)
	if err != nil {
		return models.CandidateRecord{}, withLine(err, lineNo)
	}

	when, err := p.NormalizeTimestamp(raw.Timestamp)
	if err != nil {
		return models.CandidateRecord{}, withLine(err, lineNo)
	}
	lat, err := parseCoordinate("latitude", raw.Latitude)
	if err != nil {
		return models.CandidateRecord{}, withLine(err, lineNo)
	}
	lon, err := parseCoordinate("longitude", raw.Longitude)
	if err != nil {
		return models.CandidateRecord{}, withLine(err, lineNo)
	}

	return models.CandidateRecord{
		Line:      lineNo,
		SensorID:  sensorID,
		Timestamp: when,
		Latitude:  lat,
		Longitude: lon,
	}, nil
}

// NormalizeTimestamp re-renders a source timestamp in the store layout.
// The value must render back to itself under the source layout: time.Parse
// silently accepts fractional seconds the layout does not name.
func (p *Parser) NormalizeTimestamp(value string) (string, error) {
	t, err := time.Parse(p.formats.Source, value)
	if err != nil {
		return "", &MalformedLineError{Reason: fmt.Sprintf("timestamp %q", value), Err: err}
	}
	if t.Format(p.formats.Source) != value {
		return "", &MalformedLineError{Reason: fmt.Sprintf("timestamp %q does not match layout %q", value, p.formats.Source)}
	}
	return t.Format(p.formats.Store), nil
}

func parseCoordinate(name, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &MalformedLineError{Reason: fmt.Sprintf("%s %q", name, value), Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &MalformedLineError{Reason: fmt.Sprintf("%s %q is not finite", name, value)}
	}
	return v, nil
}

func withLine(err error, lineNo int) error {
	var malformed *MalformedLineError
	if errors.As(err, &malformed) && malformed.Line == 0 {
		malformed.Line = lineNo
	}
	return err
}

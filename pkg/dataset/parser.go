package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Parser kinds selectable through configuration
const (
	ParserArrow = "arrow"
	ParserCSV   = "csv"
)

var (
	// ErrNoHeader is returned when the input has no header row
	ErrNoHeader = errors.New("csv input has no header row")
	// ErrUnknownParser is returned for an unsupported parser kind
	ErrUnknownParser = errors.New("unknown parser")
)

//nolint:gochecknoglobals // UTF-8 byte order mark
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseResult is the outcome of parsing a payload. Skipped counts rows dropped because they
// could not be parsed; it is a diagnostic, never an error.
type ParseResult struct {
	Dataset *Dataset
	Skipped int
}

// Parser turns a delimited-text payload into a dataset
type Parser interface {
	// Parse reads the full payload
	Parse(r io.Reader) (*ParseResult, error)
	// Name identifies the implementation in logs and summaries
	Name() string
}

// NewParser returns the parser registered for kind. An empty kind selects arrow.
func NewParser(kind string, log logrus.FieldLogger) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", ParserArrow:
		return NewArrowParser(log), nil
	case ParserCSV:
		return NewCSVParser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownParser, kind)
	}
}

// CSVParser is the generic delimited-text reader. It tolerates malformed rows by skipping them.
type CSVParser struct{}

// NewCSVParser creates a lenient csv parser
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Name implements Parser
func (p *CSVParser) Name() string {
	return ParserCSV
}

// Parse implements Parser
func (p *CSVParser) Parse(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(skipBOM(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}

		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := normalizeHeader(header)
	if len(columns) == 0 {
		return nil, ErrNoHeader
	}

	result := &ParseResult{
		Dataset: &Dataset{
			Columns: columns,
			Records: make([]Record, 0, 1024),
		},
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Skipped++
				continue
			}

			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		if len(row) != len(columns) {
			result.Skipped++
			continue
		}

		result.Dataset.Records = append(result.Dataset.Records, NewRecord(rowFields(columns, row)))
	}

	return result, nil
}

// ReadHeader returns the normalized header row of a payload
func ReadHeader(data []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}

		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := normalizeHeader(header)
	if len(columns) == 0 {
		return nil, ErrNoHeader
	}

	return columns, nil
}

func normalizeHeader(header []string) []string {
	columns := make([]string, 0, len(header))
	empty := true

	for _, h := range header {
		h = strings.TrimSpace(h)
		if h != "" {
			empty = false
		}

		columns = append(columns, h)
	}

	if empty {
		return nil
	}

	return columns
}

func rowFields(columns, row []string) map[string]string {
	fields := make(map[string]string, len(columns))
	for i, col := range columns {
		fields[col] = row[i]
	}

	return fields
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)

	peek, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(peek, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	return br
}

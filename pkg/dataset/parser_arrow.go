package dataset

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowcsv "github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sirupsen/logrus"
)

const defaultArrowChunk = 4096

// ArrowParser reads the payload as an arrow table with one utf8 column per header field.
// Arrow rejects irregular rows outright, so on a read error the payload is re-parsed with the
// lenient csv reader, which skips the offending rows instead.
type ArrowParser struct {
	log      logrus.FieldLogger
	mem      memory.Allocator
	chunk    int
	fallback Parser
}

// NewArrowParser creates an arrow-backed parser
func NewArrowParser(log logrus.FieldLogger) *ArrowParser {
	return &ArrowParser{
		log:      log.WithField("component", "parser.arrow"),
		mem:      memory.DefaultAllocator,
		chunk:    defaultArrowChunk,
		fallback: NewCSVParser(),
	}
}

// Name implements Parser
func (p *ArrowParser) Name() string {
	return ParserArrow
}

// Parse implements Parser
func (p *ArrowParser) Parse(r io.Reader) (*ParseResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)

	columns, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}

	ds, err := p.readTable(data, columns)
	if err != nil {
		p.log.WithError(err).Warn("Table reader rejected payload, re-parsing leniently")

		return p.fallback.Parse(bytes.NewReader(data))
	}

	return &ParseResult{Dataset: ds}, nil
}

func (p *ArrowParser) readTable(data []byte, columns []string) (*Dataset, error) {
	fields := make([]arrow.Field, len(columns))
	for i, col := range columns {
		fields[i] = arrow.Field{Name: col, Type: arrow.BinaryTypes.String, Nullable: true}
	}

	reader := arrowcsv.NewReader(
		bytes.NewReader(data),
		arrow.NewSchema(fields, nil),
		arrowcsv.WithAllocator(p.mem),
		arrowcsv.WithHeader(true),
		arrowcsv.WithChunk(p.chunk),
		arrowcsv.WithLazyQuotes(true),
	)
	defer reader.Release()

	ds := &Dataset{
		Columns: columns,
		Records: make([]Record, 0, p.chunk),
	}

	for reader.Next() {
		batch := reader.Record()

		strs := make([]*array.String, batch.NumCols())
		for i := range strs {
			col, ok := batch.Column(i).(*array.String)
			if !ok {
				return nil, fmt.Errorf("column %q is %s, expected utf8", columns[i], batch.Column(i).DataType())
			}

			strs[i] = col
		}

		for row := 0; row < int(batch.NumRows()); row++ {
			values := make(map[string]string, len(columns))
			for i, col := range strs {
				if col.IsNull(row) {
					values[columns[i]] = ""
					continue
				}

				// Value aliases the batch buffer, which the reader recycles
				values[columns[i]] = strings.Clone(col.Value(row))
			}

			ds.Records = append(ds.Records, NewRecord(values))
		}
	}

	if err := reader.Err(); err != nil {
		return nil, err
	}

	return ds, nil
}

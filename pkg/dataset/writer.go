package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV serializes the dataset as a header row followed by one row per record, in column
// order. Derived values are not written; they are recomputed on parse.
func WriteCSV(w io.Writer, ds *Dataset) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(ds.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(ds.Columns))
	for i, rec := range ds.Records {
		for j, col := range ds.Columns {
			row[j] = rec.Fields[col]
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()

	return writer.Error()
}

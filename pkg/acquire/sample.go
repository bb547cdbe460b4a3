package acquire

import _ "embed"

// sampleCSV is a small bundled dataset served for the sample shortcut
//
//go:embed sample_2024.csv
var sampleCSV []byte

// sampleLocation is reported as the metadata URL of sample acquisitions
const sampleLocation = "embedded:sample_2024.csv"

package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// CrashHeader is the column set used by the fixtures
//
//nolint:gochecknoglobals // Shared fixture header
var CrashHeader = []string{
	"crash_date",
	"crash_time",
	"borough",
	"latitude",
	"longitude",
	"on_street_name",
	"number_of_persons_injured",
	"number_of_persons_killed",
	"contributing_factor_vehicle_1",
	"collision_id",
}

// CrashRow is one fixture row
type CrashRow struct {
	Date     string
	Time     string
	Borough  string
	Street   string
	Injured  string
	Killed   string
	Factor   string
	ID       string
	Lat, Lon string
}

func (r CrashRow) fields() []string {
	return []string{r.Date, r.Time, r.Borough, r.Lat, r.Lon, r.Street, r.Injured, r.Killed, r.Factor, r.ID}
}

// CrashCSV renders fixture rows as CSV text with the fixture header
func CrashCSV(rows ...CrashRow) string {
	var b strings.Builder

	b.WriteString(strings.Join(CrashHeader, ","))
	b.WriteString("\n")

	for _, r := range rows {
		b.WriteString(strings.Join(r.fields(), ","))
		b.WriteString("\n")
	}

	return b.String()
}

// ThreeDayRows returns rows dated 2024-01-01, 2024-06-15 and 2024-12-31
func ThreeDayRows() []CrashRow {
	return []CrashRow{
		{Date: "2024-01-01", Time: "08:15", Borough: "BROOKLYN", Street: "FULTON ST", Injured: "1", Killed: "0", Factor: "Driver Inattention/Distraction", ID: "4700001", Lat: "40.6872", Lon: "-73.9418"},
		{Date: "2024-06-15", Time: "17:40", Borough: "QUEENS", Street: "QUEENS BLVD", Injured: "0", Killed: "1", Factor: "Unsafe Speed", ID: "4700002", Lat: "40.7420", Lon: "-73.8810"},
		{Date: "2024-12-31", Time: "23:59", Borough: "MANHATTAN", Street: "BROADWAY", Injured: "2", Killed: "0", Factor: "Unspecified", ID: "4700003", Lat: "40.7590", Lon: "-73.9845"},
	}
}

// WriteFile writes content under dir and returns the full path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

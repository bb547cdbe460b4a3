package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalidFormat is returned for an unknown --format value
var ErrInvalidFormat = errors.New("format must be text or json")

const summaryTemplate = `{{- define "day" }}{{ if . }}{{ .Format "2006-01-02" }}{{ else }}n/a{{ end }}{{ end -}}
Source       {{ .Specifier }} (served from {{ .Source }}, parser {{ .Parser }})
Rows         {{ .Rows }}{{ if .Range }} of {{ .TotalRows }} in {{ .Range }}{{ end }}
Columns      {{ .Columns }}
Span         {{ template "day" .Earliest }} .. {{ template "day" .Latest }}
{{- if .Skipped }}
Skipped      {{ .Skipped }} malformed rows
{{- end }}
{{- with .Metadata }}
Cached at    {{ .CacheTimestamp.Format "2006-01-02 15:04:05 MST" }}{{ if .URL }} from {{ .URL }}{{ end }}
{{- end }}
{{- if .Degraded }}
Degraded     {{ .FallbackReason | default "yes" }}
{{- end }}
Took         {{ .Duration }}
{{- range $col, $n := .Missing }}
Missing      {{ $n }} {{ $col | replace "_" " " }}
{{- end }}
{{- if .TopFactors }}

Top contributing factors
{{- range .TopFactors }}
  {{ printf "%7d" .Count }}  {{ .Factor | trunc 60 }}
{{- end }}
{{- end }}
{{- if .Preview }}

Preview
{{- range $i, $r := .Preview }}
  {{ add1 $i }}. {{ $r.Get "crash_date" | default "?" }} {{ $r.Get "crash_time" }}  {{ $r.Get "borough" | lower | title | default "Unknown" }}  {{ $r.Get "on_street_name" | trim | default "-" }}
{{- end }}
{{- end }}
`

//nolint:gochecknoglobals // Parsed once
var summaryTmpl = template.Must(template.New("summary").Funcs(sprig.TxtFuncMap()).Parse(summaryTemplate))

// render writes v as indented JSON, or through tmpl for the text format
func render(w io.Writer, format string, tmpl *template.Template, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	case FormatText, "":
		if err := tmpl.Execute(w, v); err != nil {
			return fmt.Errorf("failed to render output: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

func validateFormat(format string) error {
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}

	return nil
}

package cmd

import (
	"context"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/ethpandaops/crashpull/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var cacheFormat string

// cacheCmd represents the cache command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the local dataset cache",
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache presence, provenance and freshness without loading records",
	RunE:  runCacheStatus,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Read and parse the whole cache and report its shape",
	RunE:  runCacheVerify,
}

const cacheStatusTemplate = `{{- define "status" -}}
Data file    {{ .DataPath }}{{ if .SizeBytes }} ({{ .SizeBytes }} bytes){{ end }}
Meta file    {{ .MetaPath }}
{{- if .Corrupt }}
State        corrupt: {{ .Error }}
{{- else if not .Present }}
State        missing
{{- else }}
State        {{ if .Stale }}stale{{ else }}fresh{{ end }} (age {{ .Age }})
Source       {{ .Metadata.Source }}
Cached at    {{ .Metadata.CacheTimestamp.Format "2006-01-02 15:04:05 MST" }}
{{- with .Metadata.URL }}
URL          {{ . }}
{{- end }}
{{- end }}
{{- with .LastRefresh }}
Last refresh {{ .Trigger }} at {{ .At.Format "2006-01-02 15:04:05 MST" }}: {{ if .Success }}ok from {{ .Source }}, {{ .Rows }} rows{{ else }}failed: {{ .Error }}{{ end }}
{{- end }}
{{- end -}}
{{ template "status" . }}
`

const cacheVerifyTemplate = `{{ template "status" .CacheStatus }}
{{- if .Present }}
Rows         {{ .Rows }} ({{ .Undated }} without a crash date, {{ .Skipped }} skipped)
Columns      {{ len .Columns }}: {{ .Columns | join ", " | trunc 120 }}
{{- if .Earliest }}
Span         {{ .Earliest.Format "2006-01-02" }} .. {{ .Latest.Format "2006-01-02" }}
{{- end }}
{{- end }}
`

//nolint:gochecknoglobals // Parsed once
var (
	cacheStatusTmpl = template.Must(template.New("cache-status").Funcs(sprig.TxtFuncMap()).Parse(cacheStatusTemplate))
	cacheVerifyTmpl = template.Must(template.Must(cacheStatusTmpl.Clone()).New("cache-verify").Parse(cacheVerifyTemplate))
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheVerifyCmd)

	cacheCmd.PersistentFlags().StringVar(&cacheFormat, "format", FormatText, "output format (text, json)")
}

func withEngine(cmd *cobra.Command, fn func(ctx context.Context, svc *engine.Service) error) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := validateFormat(cacheFormat); err != nil {
		return err
	}

	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	levelFromConfig(cmd, cfg.Logging)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := engine.NewService(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close engine")
		}
	}()

	return fn(ctx, svc)
}

func runCacheStatus(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, svc *engine.Service) error {
		status, err := svc.Admin().Status(ctx)
		if err != nil {
			return err
		}

		return render(cmd.OutOrStdout(), cacheFormat, cacheStatusTmpl, status)
	})
}

func runCacheVerify(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, svc *engine.Service) error {
		report, err := svc.Admin().Verify(ctx)
		if err != nil {
			return err
		}

		return render(cmd.OutOrStdout(), cacheFormat, cacheVerifyTmpl, report)
	})
}

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/crashpull/pkg/observability"
	"github.com/sirupsen/logrus"
)

var errInvalidS3URL = errors.New("invalid s3 URL, expected s3://bucket/key")

// S3Fetcher downloads payloads from S3 mirrors with anonymous access
type S3Fetcher struct {
	log      logrus.FieldLogger
	client   *s3.Client
	maxBytes int64
}

// NewS3Fetcher creates an S3 fetcher with anonymous credentials
func NewS3Fetcher(ctx context.Context, log logrus.FieldLogger, cfg *Config) (*S3Fetcher, error) {
	cfg.SetDefaults()

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.S3.Region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
		config.WithHTTPClient(newHTTPClient(cfg, false)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = true
		},
	}

	if cfg.S3.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3.EndpointURL)
		})
	}

	return &S3Fetcher{
		log:      log.WithField("component", "fetcher.s3"),
		client:   s3.NewFromConfig(awsCfg, clientOpts...),
		maxBytes: cfg.MaxBytes,
	}, nil
}

// Fetch implements Fetcher
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string) (res *Result, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		size := 0

		if err != nil {
			status = "error"
		} else {
			size = len(res.Body)
		}

		observability.RecordFetch("s3", TLSModeStrict, status, time.Since(start).Seconds(), size)
	}()

	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get object %s: %w", ErrNetwork, rawURL, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read object body: %w", ErrNetwork, err)
	}

	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, ErrPayloadTooLarge)
	}

	if out.ContentLength != nil && *out.ContentLength != int64(len(data)) {
		return nil, fmt.Errorf("%w: truncated object: got %d of %d bytes", ErrNetwork, len(data), *out.ContentLength)
	}

	f.log.WithFields(logrus.Fields{
		"bucket": bucket,
		"key":    key,
		"bytes":  len(data),
	}).Info("Fetched object")

	return &Result{
		URL:       rawURL,
		Body:      data,
		TLSMode:   TLSModeStrict,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errInvalidS3URL, err)
	}

	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", errInvalidS3URL, rawURL)
	}

	return u.Host, key, nil
}

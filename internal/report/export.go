package report

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	ferrors "github.com/vango-dev/framepipe/internal/errors"
)

// Destination is a parsed export target.
type Destination struct {
	// Bucket and Key are set for s3:// destinations.
	Bucket string
	Key    string
	// Path is set for local destinations.
	Path string
}

// IsS3 reports whether d names an S3 object.
func (d Destination) IsS3() bool { return d.Bucket != "" }

func (d Destination) String() string {
	if d.IsS3() {
		return "s3://" + d.Bucket + "/" + d.Key
	}
	return d.Path
}

// ParseDestination parses a local path or s3://bucket/key.
func ParseDestination(dest string) (Destination, error) {
	if dest == "" {
		return Destination{}, ferrors.New(ferrors.CodeReportExport).
			WithDetail("The report destination is empty.")
	}
	if !strings.HasPrefix(dest, "s3://") {
		return Destination{Path: dest}, nil
	}

	u, err := url.Parse(dest)
	if err != nil {
		return Destination{}, ferrors.New(ferrors.CodeReportExport).Wrap(err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return Destination{}, ferrors.New(ferrors.CodeReportExport).
			WithDetail("S3 destinations need a bucket and an object key: " + dest)
	}
	return Destination{Bucket: u.Host, Key: key}, nil
}

// ObjectPutter is the subset of the S3 client used for export.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes reports to destinations.
type Exporter struct {
	s3 ObjectPutter
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithS3Client sets the client used for s3:// destinations. Without one,
// a client is built from the environment on first use.
func WithS3Client(c ObjectPutter) ExporterOption {
	return func(e *Exporter) {
		e.s3 = c
	}
}

// NewExporter creates an Exporter.
func NewExporter(opts ...ExporterOption) *Exporter {
	e := &Exporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes r to dest and returns the parsed destination.
func (e *Exporter) Export(ctx context.Context, r *Report, dest string) (Destination, error) {
	d, err := ParseDestination(dest)
	if err != nil {
		return d, err
	}
	data, err := r.Marshal()
	if err != nil {
		return d, ferrors.New(ferrors.CodeReportExport).Wrap(err)
	}

	if !d.IsS3() {
		if dir := filepath.Dir(d.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return d, ferrors.New(ferrors.CodeReportExport).Wrap(err)
			}
		}
		if err := os.WriteFile(d.Path, data, 0o644); err != nil {
			return d, ferrors.New(ferrors.CodeReportExport).Wrap(err)
		}
		return d, nil
	}

	if e.s3 == nil {
		e.s3 = NewS3ClientFromEnv()
	}
	_, err = e.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.Bucket),
		Key:           aws.String(d.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return d, ferrors.New(ferrors.CodeReportExport).
			WithDetail("PutObject " + d.String() + " failed.").
			Wrap(err)
	}
	return d, nil
}

// NewS3ClientFromEnv builds an S3 client from AWS_REGION (default
// us-east-1), AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN
// and, for S3-compatible stores, AWS_ENDPOINT_URL_S3 or AWS_ENDPOINT_URL.
func NewS3ClientFromEnv() *s3.Client {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
					SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
					SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
					Source:          "environment",
				}, nil
			})),
	}

	endpoint := os.Getenv("AWS_ENDPOINT_URL_S3")
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

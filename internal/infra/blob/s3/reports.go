package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
	"github.com/sessionlens/analyzer/internal/infra/storage"
)

const reportPrefix = "analyze_report/"

var _ analysis.ReportStore = (*ReportStore)(nil)

// ReportStore persists composite analyze reports under the analyze_report/
// prefix of the bucket, one immutable versioned object per run.
type ReportStore struct {
	bucket string
	client Client
	tracer trace.Tracer
}

// NewReportStore creates an S3-backed report store for the given bucket.
func NewReportStore(bucket string, client Client, tracer trace.Tracer) *ReportStore {
	return &ReportStore{bucket: bucket, client: client, tracer: tracer}
}

// Upload serializes the report under the given path as the next version and
// returns the stored reference.
func (s *ReportStore) Upload(ctx context.Context, report analysis.AnalyzeReport, path string) (string, error) {
	attrs := []attribute.KeyValue{
		attribute.String("blob.bucket", s.bucket),
		attribute.String("blob.path", path),
		attribute.Int("report.dimensions", len(report.Reports)),
	}

	var ref string
	err := storage.ExecuteAndTrace(ctx, s.tracer, "s3.reports.upload", attrs, func(ctx context.Context) error {
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encoding analyze report: %w", err)
		}

		version, err := objectCount(ctx, s.client, s.bucket, reportPrefix+path)
		if err != nil {
			return err
		}
		ref = fmt.Sprintf("%s/analyze_report_v%d.json", path, version+1)

		if _, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(reportPrefix + ref),
			Body:   bytes.NewReader(data),
		}); err != nil {
			return fmt.Errorf("uploading analyze report %q: %w", ref, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Download fetches and decodes a previously stored report.
func (s *ReportStore) Download(ctx context.Context, ref string) (analysis.AnalyzeReport, error) {
	attrs := []attribute.KeyValue{
		attribute.String("blob.bucket", s.bucket),
		attribute.String("blob.key", reportPrefix+ref),
	}

	var report analysis.AnalyzeReport
	err := storage.ExecuteAndTrace(ctx, s.tracer, "s3.reports.download", attrs, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(reportPrefix + ref),
		})
		if err != nil {
			return fmt.Errorf("fetching analyze report %q: %w", ref, err)
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return fmt.Errorf("reading analyze report %q: %w", ref, err)
		}
		if err := json.Unmarshal(data, &report); err != nil {
			return fmt.Errorf("decoding analyze report %q: %w", ref, err)
		}
		return nil
	})
	if err != nil {
		return analysis.AnalyzeReport{}, err
	}
	return report, nil
}

package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
	"github.com/sessionlens/analyzer/internal/infra/storage"
)

const scriptPrefix = "script/"

var _ analysis.ScriptStore = (*ScriptStore)(nil)

// ScriptStore reads and writes transcript artifacts under the script/
// prefix of the bucket. Uploads are never overwritten; each write gets the
// next version number under its path.
type ScriptStore struct {
	bucket string
	client Client
	tracer trace.Tracer
}

// NewScriptStore creates an S3-backed script store for the given bucket.
func NewScriptStore(bucket string, client Client, tracer trace.Tracer) *ScriptStore {
	return &ScriptStore{bucket: bucket, client: client, tracer: tracer}
}

// Download fetches the script artifact at the given reference path.
func (s *ScriptStore) Download(ctx context.Context, ref string) ([]byte, error) {
	attrs := []attribute.KeyValue{
		attribute.String("blob.bucket", s.bucket),
		attribute.String("blob.key", scriptPrefix+ref),
	}

	var data []byte
	err := storage.ExecuteAndTrace(ctx, s.tracer, "s3.scripts.download", attrs, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(scriptPrefix + ref),
		})
		if err != nil {
			return fmt.Errorf("fetching script %q: %w", ref, err)
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		if err != nil {
			return fmt.Errorf("reading script %q: %w", ref, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Upload writes a script artifact under the given path as the next version
// and returns the stored reference.
func (s *ScriptStore) Upload(ctx context.Context, data []byte, path string) (string, error) {
	attrs := []attribute.KeyValue{
		attribute.String("blob.bucket", s.bucket),
		attribute.String("blob.path", path),
	}

	var ref string
	err := storage.ExecuteAndTrace(ctx, s.tracer, "s3.scripts.upload", attrs, func(ctx context.Context) error {
		version, err := objectCount(ctx, s.client, s.bucket, scriptPrefix+path)
		if err != nil {
			return err
		}
		ref = fmt.Sprintf("%s/script_v%d.json", path, version+1)

		if _, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(scriptPrefix + ref),
			Body:   bytes.NewReader(data),
		}); err != nil {
			return fmt.Errorf("uploading script %q: %w", ref, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// List returns the script references under the given path prefix.
func (s *ScriptStore) List(ctx context.Context, prefix string) ([]string, error) {
	var refs []string
	attrs := []attribute.KeyValue{attribute.String("blob.prefix", prefix)}

	err := storage.ExecuteAndTrace(ctx, s.tracer, "s3.scripts.list", attrs, func(ctx context.Context) error {
		out, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(scriptPrefix + prefix),
		})
		if err != nil {
			return fmt.Errorf("listing scripts under %q: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			refs = append(refs, aws.ToString(obj.Key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// objectCount returns the number of objects currently stored under prefix.
func objectCount(ctx context.Context, client Client, bucket, prefix string) (int32, error) {
	out, err := client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("counting objects under %q: %w", prefix, err)
	}
	return aws.ToInt32(out.KeyCount), nil
}

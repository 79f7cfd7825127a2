// Package s3 provides S3-backed object storage for script and report
// artifacts. The bucket is treated as an opaque blob store with upload,
// download, and list-by-prefix primitives.
package s3

import (
	"context"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client is the subset of the S3 API the artifact stores need. It is
// satisfied by *s3.Client and by fakes in tests.
type Client interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

var _ Client = (*awss3.Client)(nil)

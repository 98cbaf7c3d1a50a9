// Package objstore wraps Amazon S3 as the object-storage collaborator named
// in spec.md §1 (Get/Put/Delete with an async stream), grounded on
// original_source/src/aws.h's AWS class (async Get/Put handles with
// done/fail callbacks), re-expressed per spec.md §9's guidance that async
// completions become Go idioms (here, blocking calls run on a caller-
// supplied goroutine, since the recorder package already spawns a goroutine
// per push/evict rather than needing a second layer of futures).
package objstore

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client implements recorder.ObjectStore against Amazon S3 (or any
// S3-compatible endpoint). Its concrete dependency,
// github.com/aws/aws-sdk-go-v2, is present in the retrieved example pack via
// nishisan-dev-n-backup/go.mod; that repo's own source never calls the SDK,
// so the Uploader/Downloader wiring below follows the SDK's documented
// idioms rather than an in-pack call site (see DESIGN.md).
type S3Client struct {
	api        *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// New builds an S3Client from the process's default AWS credential chain
// (environment, shared config, EC2/ECS metadata), matching
// config.LoadDefaultConfig's standard usage.
func New(ctx context.Context, region string) (*S3Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := s3.NewFromConfig(cfg)
	return &S3Client{
		api:        api,
		uploader:   manager.NewUploader(api),
		downloader: manager.NewDownloader(api),
	}, nil
}

// PutObject uploads localPath to bucket/key. Grounded on aws.h's
// AWS::S3PutObject.
func (c *S3Client) PutObject(ctx context.Context, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// HeadObject returns the object's content length, grounded on aws.h's
// bufSiz-parameterised AWS::S3GetObject (the reader needs the object size to
// compute index record counts before issuing byte-range reads).
func (c *S3Client) HeadObject(ctx context.Context, bucket, key string) (int64, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("s3 head %s/%s: %w", bucket, key, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

// GetObjectRange reads [offset, offset+length) of bucket/key, grounded on
// aws.h's AWS::S3GetObject (bufSiz-chunked async GET). It downloads through
// c.downloader so range reads benefit from the same part-concurrency
// manager.Downloader gives c.uploader's multipart uploads.
func (c *S3Client) GetObjectRange(ctx context.Context, bucket, key string, offset, length int64) ([]byte, error) {
	rang := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	buf := manager.NewWriteAtBuffer(make([]byte, 0, length))
	n, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(rang),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s range %s: %w", bucket, key, rang, err)
	}
	out := buf.Bytes()
	if int64(len(out)) > n {
		out = out[:n]
	}
	return out, nil
}

// DeleteObject removes bucket/key, grounded on aws.h's AWS::S3DeleteObject.
func (c *S3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// ListObjects lists every key under prefix in bucket, grounded on aws.h's
// AWS::S3ListObjects (used by LoopRec on startup to recover the remote
// segment map, SPEC_FULL.md §C.6).
func (c *S3Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

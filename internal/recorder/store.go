package recorder

import "context"

// ObjectStore is the object-storage collaborator named in spec.md §1,
// satisfied by internal/objstore.S3Client. Defined here, at the point of
// use, rather than in the objstore package, per standard Go practice.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key, localPath string) error
	HeadObject(ctx context.Context, bucket, key string) (int64, error)
	GetObjectRange(ctx context.Context, bucket, key string, offset, length int64) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

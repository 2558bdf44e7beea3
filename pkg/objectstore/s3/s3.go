package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/stripefs/pkg/objectstore"
)

const lockStripes = 64

// S3ObjectStore implements ObjectStore on top of an S3 bucket.
//
// Each object maps to one S3 key (KeyPrefix + ObjectID). S3 has no
// partial writes, so WriteObject and TruncateObject are implemented as
// read-modify-write of the whole object. Objects are bounded by the file
// layout's object size (4 MiB by default), which keeps the cost of a
// rewrite small.
//
// Thread Safety:
// Read-modify-write cycles on the same object are serialized within this
// process by a striped lock table. Writers in other processes are not
// coordinated; the last PutObject wins.
type S3ObjectStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   S3Metrics
	locks     [lockStripes]sync.Mutex
}

// S3ObjectStoreConfig contains configuration for the S3 object store.
type S3ObjectStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name. It must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "stripefs/data/" results in keys like "stripefs/data/10000000000.00000000"
	KeyPrefix string

	// Metrics receives per-operation observations. nil disables metrics.
	Metrics S3Metrics
}

// NewS3ObjectStore creates a new S3-based object store.
//
// This verifies bucket access with a HeadBucket request. The bucket must
// already exist - this function does not create it.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3ObjectStore: Initialized S3 object store
//   - error: Returns error if bucket access fails or context is cancelled
func NewS3ObjectStore(ctx context.Context, cfg S3ObjectStoreConfig) (*S3ObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &S3ObjectStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   metrics,
	}, nil
}

// objectKey returns the full S3 key for an object.
func (s *S3ObjectStore) objectKey(id objectstore.ObjectID) string {
	return s.keyPrefix + string(id)
}

// objectID strips the key prefix from a listed key.
func (s *S3ObjectStore) objectID(key string) objectstore.ObjectID {
	if s.keyPrefix != "" && len(key) > len(s.keyPrefix) {
		key = key[len(s.keyPrefix):]
	}
	return objectstore.ObjectID(key)
}

func (s *S3ObjectStore) lockFor(id objectstore.ObjectID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

// isNotFound reports whether err is S3's "no such key" in either of the
// shapes GetObject and HeadObject return it.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// ============================================================================
// ObjectStore Interface Implementation
// ============================================================================

// ReadObject issues a ranged GetObject for the part of [offset,
// offset+length) that lies inside the object.
func (s *S3ObjectStore) ReadObject(ctx context.Context, id objectstore.ObjectID, offset, length uint64) (data []byte, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("ReadObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if err = objectstore.CheckRange(offset, length); err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}

	info, err := s.StatObject(ctx, id)
	if err != nil {
		return nil, err
	}

	if offset >= info.Size || length == 0 {
		return []byte{}, nil
	}
	end := info.Size
	if length < info.Size-offset {
		end = offset + length
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end-1)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err = io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	s.metrics.RecordBytes("read", int64(len(data)))
	return data, nil
}

// WriteObject merges data into the stored object and uploads the result.
func (s *S3ObjectStore) WriteObject(ctx context.Context, id objectstore.ObjectID, offset uint64, data []byte) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("WriteObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	if err = objectstore.ValidateID(id); err != nil {
		return err
	}
	if err = objectstore.CheckRange(offset, uint64(len(data))); err != nil {
		return fmt.Errorf("object %s: %w", id, err)
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.getWhole(ctx, id)
	if err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
		return err
	}

	required := offset + uint64(len(data))
	if uint64(len(existing)) < required {
		grown := make([]byte, required)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)

	if err = s.put(ctx, id, existing); err != nil {
		return err
	}

	s.metrics.RecordBytes("write", int64(len(existing)))
	return nil
}

// TruncateObject rewrites the object at the new size.
func (s *S3ObjectStore) TruncateObject(ctx context.Context, id objectstore.ObjectID, size uint64) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("TruncateObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.getWhole(ctx, id)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return fmt.Errorf("truncate failed for %s: %w", id, objectstore.ErrObjectNotFound)
		}
		return err
	}

	current := uint64(len(existing))
	if current == size {
		return nil
	}

	var resized []byte
	if size < current {
		resized = existing[:size]
	} else {
		resized = make([]byte, size)
		copy(resized, existing)
	}

	return s.put(ctx, id, resized)
}

// RemoveObject deletes the object. S3 DeleteObject is already idempotent.
func (s *S3ObjectStore) RemoveObject(ctx context.Context, id objectstore.ObjectID) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("RemoveObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// StatObject issues a HeadObject request.
func (s *S3ObjectStore) StatObject(ctx context.Context, id objectstore.ObjectID) (*objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	info := &objectstore.ObjectInfo{ID: id}
	if result.ContentLength != nil {
		info.Size = uint64(*result.ContentLength)
	}
	if result.LastModified != nil {
		info.ModTime = *result.LastModified
	}
	return info, nil
}

// GetStorageStats lists every object under the prefix and sums the sizes.
//
// This is expensive for large buckets. S3 has no capacity limit, so total
// and available sizes are reported as unbounded.
func (s *S3ObjectStore) GetStorageStats(ctx context.Context) (*objectstore.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var used, count uint64

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Size != nil {
				used += uint64(*obj.Size)
			}
			count++
		}
	}

	average := uint64(0)
	if count > 0 {
		average = used / count
	}

	return &objectstore.StorageStats{
		TotalSize:     ^uint64(0),
		UsedSize:      used,
		AvailableSize: ^uint64(0),
		ObjectCount:   count,
		AverageSize:   average,
	}, nil
}

// ============================================================================
// Helpers
// ============================================================================

// getWhole downloads the full object.
func (s *S3ObjectStore) getWhole(ctx context.Context, id objectstore.ObjectID) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing object: %w", err)
	}
	return data, nil
}

func (s *S3ObjectStore) put(ctx context.Context, id objectstore.ObjectID, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to write object to S3: %w", err)
	}
	return nil
}

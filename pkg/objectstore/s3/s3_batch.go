package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/stripefs/pkg/objectstore"
)

// maxDeleteBatch is the DeleteObjects per-request limit.
const maxDeleteBatch = 1000

// ============================================================================
// GarbageCollectableStore Interface Implementation
// ============================================================================

// ListObjects pages through every key under the prefix.
func (s *S3ObjectStore) ListObjects(ctx context.Context) ([]objectstore.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []objectstore.ObjectID

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
			if obj.Key == nil {
				continue
			}
			ids = append(ids, s.objectID(*obj.Key))
		}
	}

	return ids, nil
}

// RemoveBatch deletes objects with DeleteObjects, up to 1000 keys per
// request. A failed request marks its whole batch as failed and moves on.
func (s *S3ObjectStore) RemoveBatch(ctx context.Context, ids []objectstore.ObjectID) (map[objectstore.ObjectID]error, error) {
	failures := make(map[objectstore.ObjectID]error)

	for i := 0; i < len(ids); i += maxDeleteBatch {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(ids); j++ {
				failures[ids[j]] = err
			}
			return failures, err
		}

		batch := ids[i:min(i+maxDeleteBatch, len(ids))]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, id := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(s.objectKey(id))}
		}

		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			for _, id := range batch {
				failures[id] = err
			}
			continue
		}

		for _, deleteErr := range result.Errors {
			if deleteErr.Key == nil {
				continue
			}
			msg := "unknown error"
			if deleteErr.Code != nil && deleteErr.Message != nil {
				msg = fmt.Sprintf("%s: %s", *deleteErr.Code, *deleteErr.Message)
			}
			failures[s.objectID(*deleteErr.Key)] = fmt.Errorf("%s", msg)
		}
	}

	return failures, nil
}

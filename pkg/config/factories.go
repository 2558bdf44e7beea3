package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/stripefs/internal/logger"
	"github.com/marmos91/stripefs/pkg/metadata"
	metaBadger "github.com/marmos91/stripefs/pkg/metadata/badger"
	metaMemory "github.com/marmos91/stripefs/pkg/metadata/memory"
	"github.com/marmos91/stripefs/pkg/objectstore"
	objectsFs "github.com/marmos91/stripefs/pkg/objectstore/fs"
	objectsMemory "github.com/marmos91/stripefs/pkg/objectstore/memory"
	"github.com/marmos91/stripefs/pkg/objectstore/replicated"
	objectsS3 "github.com/marmos91/stripefs/pkg/objectstore/s3"
)

// decodeOptions decodes a backend option map into out. Values are weakly
// typed so that environment overrides (always strings) decode too.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// ============================================================================
// Metadata stores
// ============================================================================

// CreateMetadataStore creates a metadata store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/metadata/memory (in-memory storage, ephemeral)
//   - "badger": Uses pkg/metadata/badger (BadgerDB storage, persistent)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Metadata store configuration
//
// Returns:
//   - metadata.Store: Initialized metadata store
//   - error: Configuration or initialization error
func CreateMetadataStore(ctx context.Context, cfg *MetadataConfig) (metadata.Store, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryMetadataStore(ctx, cfg.Memory)
	case "badger":
		return createBadgerMetadataStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Type)
	}
}

func createMemoryMetadataStore(ctx context.Context, options map[string]any) (metadata.Store, error) {
	var storeCfg metaMemory.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory metadata store config: %w", err)
	}

	store, err := metaMemory.NewMemoryMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory metadata store: %w", err)
	}
	return store, nil
}

func createBadgerMetadataStore(ctx context.Context, options map[string]any) (metadata.Store, error) {
	var storeCfg metaBadger.BadgerMetadataStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger metadata store config: %w", err)
	}

	store, err := metaBadger.NewBadgerMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
	}

	logger.Info("Badger metadata store initialized: path=%s", storeCfg.DBPath)
	return store, nil
}

// ============================================================================
// Object pool
// ============================================================================

// CreateObjectStore creates the replicated object pool described by cfg.
//
// One replica store is built per configured replica. With a replication
// of 1 the backend options are used as given; otherwise each replica
// gets its own numbered subdirectory (filesystem) or key prefix (s3).
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Object pool configuration
//   - s3Metrics: Metrics for S3 replicas (nil for no-op)
//
// Returns:
//   - *replicated.Pool: The pool, primary replica first
//   - error: Configuration or initialization error
func CreateObjectStore(ctx context.Context, cfg *ObjectsConfig, s3Metrics objectsS3.S3Metrics) (*replicated.Pool, error) {
	replication := cfg.Replication
	if replication <= 0 {
		replication = 1
	}

	var client *awss3.Client
	if cfg.Type == "s3" {
		var err error
		if client, err = createS3Client(ctx, cfg.S3); err != nil {
			return nil, err
		}
	}

	replicas := make([]objectstore.ObjectStore, 0, replication)
	for i := 0; i < replication; i++ {
		var (
			store objectstore.ObjectStore
			err   error
		)
		switch cfg.Type {
		case "memory":
			store, err = createMemoryObjectStore(ctx, cfg.Memory)
		case "filesystem":
			store, err = createFilesystemObjectStore(ctx, cfg.Filesystem, replicaSuffix(replication, i))
		case "s3":
			store, err = createS3ObjectStore(ctx, client, cfg.S3, replicaSuffix(replication, i), s3Metrics)
		default:
			err = fmt.Errorf("unknown object store type: %q", cfg.Type)
		}
		if err != nil {
			closeAll(replicas)
			return nil, err
		}
		replicas = append(replicas, store)
	}

	pool, err := replicated.NewPool(cfg.Pool, replicas...)
	if err != nil {
		closeAll(replicas)
		return nil, err
	}

	logger.Info("Object pool %q initialized: type=%s, replication=%d", cfg.Pool, cfg.Type, replication)
	return pool, nil
}

// replicaSuffix names replica i; empty when there is a single replica.
func replicaSuffix(replication, i int) string {
	if replication == 1 {
		return ""
	}
	return fmt.Sprintf("replica-%d", i)
}

func closeAll(stores []objectstore.ObjectStore) {
	for _, s := range stores {
		if c, ok := s.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

func createMemoryObjectStore(ctx context.Context, options map[string]any) (objectstore.ObjectStore, error) {
	var storeCfg objectsMemory.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory object store config: %w", err)
	}

	store, err := objectsMemory.NewMemoryObjectStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory object store: %w", err)
	}
	return store, nil
}

func createFilesystemObjectStore(ctx context.Context, options map[string]any, suffix string) (objectstore.ObjectStore, error) {
	var storeCfg objectsFs.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem object store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem object store: path is required")
	}
	if suffix != "" {
		storeCfg.Path = filepath.Join(storeCfg.Path, suffix)
	}

	store, err := objectsFs.NewFSObjectStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem object store: %w", err)
	}
	return store, nil
}

// s3StoreConfig holds the options of the "s3" objects section.
type s3StoreConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// createS3Client builds the S3 client shared by all S3 replicas.
func createS3Client(ctx context.Context, options map[string]any) (*awss3.Client, error) {
	var storeCfg s3StoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 object store config: %w", err)
	}
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 object store: bucket is required")
	}
	if storeCfg.Region == "" {
		storeCfg.Region = "us-east-1"
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		// Custom endpoints (MinIO, Localstack, RGW) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return client, nil
}

func createS3ObjectStore(ctx context.Context, client *awss3.Client, options map[string]any, suffix string, s3Metrics objectsS3.S3Metrics) (objectstore.ObjectStore, error) {
	var storeCfg s3StoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 object store config: %w", err)
	}

	prefix := storeCfg.KeyPrefix
	if suffix != "" {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		prefix += suffix + "/"
	}

	store, err := objectsS3.NewS3ObjectStore(ctx, objectsS3.S3ObjectStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: prefix,
		Metrics:   s3Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 object store: %w", err)
	}

	logger.Info("S3 object store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, prefix)

	return store, nil
}

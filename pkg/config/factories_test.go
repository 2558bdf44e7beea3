package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/stripefs/pkg/metadata"
)

func TestCreateMetadataStore_Memory(t *testing.T) {
	store, err := CreateMetadataStore(context.Background(), &MetadataConfig{
		Type:   "memory",
		Memory: map[string]any{"max_files": 10},
	})
	if err != nil {
		t.Fatalf("CreateMetadataStore failed: %v", err)
	}
	defer store.Close()

	stats, err := store.GetStatistics(context.Background())
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}
	if stats.MaxFiles != 10 {
		t.Errorf("Expected max_files 10, got %d", stats.MaxFiles)
	}
}

func TestCreateMetadataStore_Badger(t *testing.T) {
	dir := t.TempDir()
	store, err := CreateMetadataStore(context.Background(), &MetadataConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": dir, "block_cache_mb": "8", "index_cache_mb": 8},
	})
	if err != nil {
		t.Fatalf("CreateMetadataStore failed: %v", err)
	}
	defer store.Close()

	root, err := store.Root(context.Background())
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}
	if root.Ino != metadata.RootIno {
		t.Errorf("Unexpected root ino %d", root.Ino)
	}
}

func TestCreateMetadataStore_UnknownType(t *testing.T) {
	if _, err := CreateMetadataStore(context.Background(), &MetadataConfig{Type: "etcd"}); err == nil {
		t.Fatal("Expected error for unknown metadata type")
	}
}

func TestCreateObjectStore_MemoryReplicas(t *testing.T) {
	pool, err := CreateObjectStore(context.Background(), &ObjectsConfig{
		Type:        "memory",
		Pool:        "data",
		Replication: 3,
	}, nil)
	if err != nil {
		t.Fatalf("CreateObjectStore failed: %v", err)
	}

	if pool.Name() != "data" {
		t.Errorf("Unexpected pool name %q", pool.Name())
	}
	if pool.Replication() != 3 {
		t.Errorf("Expected 3 replicas, got %d", pool.Replication())
	}
}

func TestCreateObjectStore_FilesystemReplicaDirs(t *testing.T) {
	dir := t.TempDir()
	pool, err := CreateObjectStore(context.Background(), &ObjectsConfig{
		Type:        "filesystem",
		Pool:        "data",
		Replication: 2,
		Filesystem:  map[string]any{"path": dir},
	}, nil)
	if err != nil {
		t.Fatalf("CreateObjectStore failed: %v", err)
	}
	defer pool.Close()

	if err := pool.WriteObject(context.Background(), "1.00000000", 0, []byte("x")); err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}
	for _, replica := range []string{"replica-0", "replica-1"} {
		entries, err := os.ReadDir(filepath.Join(dir, replica))
		if err != nil {
			t.Fatalf("Replica directory %s missing: %v", replica, err)
		}
		if len(entries) != 1 {
			t.Errorf("Expected one object in %s, got %d", replica, len(entries))
		}
	}
}

func TestCreateObjectStore_FilesystemRequiresPath(t *testing.T) {
	_, err := CreateObjectStore(context.Background(), &ObjectsConfig{
		Type:        "filesystem",
		Pool:        "data",
		Replication: 1,
	}, nil)
	if err == nil {
		t.Fatal("Expected error without a path")
	}
}

func TestCreateObjectStore_S3RequiresBucket(t *testing.T) {
	_, err := CreateObjectStore(context.Background(), &ObjectsConfig{
		Type:        "s3",
		Pool:        "data",
		Replication: 1,
		S3:          map[string]any{},
	}, nil)
	if err == nil {
		t.Fatal("Expected error without a bucket")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())
	if result.Server != nil {
		t.Error("Expected no server when metrics are disabled")
	}
	if result.MountMetrics == nil {
		t.Error("Expected no-op mount metrics")
	}
	if result.S3Metrics != nil {
		t.Error("Expected nil S3 metrics when disabled")
	}
}

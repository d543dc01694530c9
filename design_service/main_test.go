package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/niczy/designtree/internal/assets"
	"github.com/niczy/designtree/internal/config"
	"github.com/niczy/designtree/internal/storage"
	"github.com/niczy/designtree/internal/tree"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestOpenBackendPersistsAcrossBackends(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		cfg  func(t *testing.T) *config.Config
	}{
		{"memory", func(t *testing.T) *config.Config {
			return &config.Config{StorageBackend: "memory", ObjectsBackend: "memory"}
		}},
		{"redis", func(t *testing.T) *config.Config {
			mr := miniredis.RunT(t)
			return &config.Config{StorageBackend: "redis", RedisAddr: mr.Addr(), RedisPrefix: "test", ObjectsBackend: "memory"}
		}},
		{"sqlite", func(t *testing.T) *config.Config {
			return &config.Config{StorageBackend: "sqlite", StorageDSN: filepath.Join(t.TempDir(), "designs.db"), ObjectsBackend: "memory"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := openBackend(ctx, tc.cfg(t), quietLogger())
			if err != nil {
				t.Fatalf("openBackend failed: %v", err)
			}
			t.Cleanup(func() { _ = b.close() })

			if err := b.store.Ping(ctx); err != nil {
				t.Fatalf("Ping failed: %v", err)
			}
			p, err := b.editor.CreateProject(ctx, "motor", "front")
			if err != nil {
				t.Fatalf("CreateProject failed: %v", err)
			}
			if _, err := b.editor.Dispatch(ctx, p.ID, tree.AddLeafOp{Name: "fan", FileID: "f1"}); err != nil {
				t.Fatalf("Dispatch failed: %v", err)
			}
			stored, err := b.store.GetProject(ctx, p.ID)
			if err != nil {
				t.Fatalf("GetProject failed: %v", err)
			}
			if !stored.Structure.Components.Has("fan") {
				t.Fatalf("expected fan to be persisted, got %v", stored.Structure.Components.Keys())
			}
		})
	}
}

func TestOpenBackendRejectsUnknownBackends(t *testing.T) {
	ctx := context.Background()
	if _, err := openBackend(ctx, &config.Config{StorageBackend: "memory", ObjectsBackend: "tape"}, quietLogger()); err == nil {
		t.Fatalf("expected an error for an unknown object store")
	}
	if _, err := openBackend(ctx, &config.Config{StorageBackend: "cassandra", ObjectsBackend: "memory"}, quietLogger()); err == nil {
		t.Fatalf("expected an error for an unknown storage backend")
	}
}

func TestOpenObjectsS3(t *testing.T) {
	objects, err := openObjects(&config.Config{ObjectsBackend: "s3", S3Bucket: "assets", S3Region: "us-east-1", S3Endpoint: "http://localhost:9000", S3AccessKey: "key", S3SecretKey: "secret"})
	if err != nil {
		t.Fatalf("openObjects failed: %v", err)
	}
	if _, ok := objects.(*storage.S3ObjectStore); !ok {
		t.Fatalf("expected an S3 object store, got %T", objects)
	}
}

func TestCheckerFor(t *testing.T) {
	objects := storage.NewInMemoryObjectStore()
	if err := objects.PutObject(context.Background(), "page/f1.svg", []byte("<svg/>")); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	local := checkerFor(&config.Config{AssetBaseURL: "/assets"}, objects)
	ok, err := local.Exists(context.Background(), "/assets/page/f1.svg")
	if err != nil || !ok {
		t.Fatalf("expected the store checker to find the asset, got %v, %v", ok, err)
	}

	remote := checkerFor(&config.Config{AssetBaseURL: "https://cdn.example.com/assets"}, objects)
	if _, ok := remote.(*assets.CachedChecker); !ok {
		t.Fatalf("expected a cached checker, got %T", remote)
	}
}

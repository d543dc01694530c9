package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/niczy/designtree/internal/editor"
	designservice "github.com/niczy/designtree/internal/services/design"
	"github.com/niczy/designtree/internal/storage"
	"github.com/niczy/designtree/internal/tree"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func startService(t *testing.T) (*editor.Editor, *designservice.Client) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ed, err := editor.New(storage.NewInMemoryStorage(), editor.Options{Logger: logger})
	if err != nil {
		t.Fatalf("editor.New failed: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	srv := designservice.NewGRPCServer(ed, logger)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return ed, designservice.NewClient(conn)
}

func TestRunExportAndShow(t *testing.T) {
	ctx := context.Background()
	ed, client := startService(t)
	cache, err := newDesignCacheWithRoot(t.TempDir())
	if err != nil {
		t.Fatalf("cache init failed: %v", err)
	}

	p, err := ed.CreateProject(ctx, "motor", "front")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if _, err := ed.Dispatch(ctx, p.ID, tree.AddLeafOp{Name: "fan", FileID: "f1"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	var out bytes.Buffer
	if err := runExport(ctx, &out, client, cache, p.ID, "first"); err != nil {
		t.Fatalf("runExport failed: %v", err)
	}
	if !strings.Contains(out.String(), "Design exported: first") {
		t.Fatalf("unexpected output %q", out.String())
	}
	design, err := ed.Designs(ctx, p.ID)
	if err != nil || len(design) != 1 {
		t.Fatalf("expected one design, got %v, %v", design, err)
	}
	hash := design[0].Hash

	out.Reset()
	if err := runExport(ctx, &out, client, cache, p.ID, ""); err != nil {
		t.Fatalf("second runExport failed: %v", err)
	}
	if !strings.Contains(out.String(), "Selection unchanged") {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := runShow(ctx, &out, client, cache, "", hash); err != nil {
		t.Fatalf("runShow from cache failed: %v", err)
	}
	if !strings.Contains(out.String(), design[0].ID) {
		t.Fatalf("expected the cached design, got %q", out.String())
	}

	other, err := newDesignCacheWithRoot(t.TempDir())
	if err != nil {
		t.Fatalf("cache init failed: %v", err)
	}
	if err := runShow(ctx, &out, client, other, "", hash); err == nil {
		t.Fatalf("expected an error for an uncached hash without a project")
	}
	out.Reset()
	if err := runShow(ctx, &out, client, other, p.ID, hash); err != nil {
		t.Fatalf("runShow from service failed: %v", err)
	}
	if ok, _ := other.Has(hash); !ok {
		t.Fatalf("expected the fetched design to be cached")
	}
	if err := runShow(ctx, &out, client, other, p.ID, "missing"); err == nil {
		t.Fatalf("expected an error for an unknown hash")
	}
}

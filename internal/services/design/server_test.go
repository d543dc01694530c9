package designservice

import (
	"context"
	"net"
	"testing"

	"github.com/niczy/designtree/internal/assets"
	"github.com/niczy/designtree/internal/editor"
	"github.com/niczy/designtree/internal/locking"
	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	ed, err := editor.New(storage.NewInMemoryStorage(), editor.Options{Logger: logger})
	if err != nil {
		t.Fatalf("editor.New failed: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(ed, logger)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestDesignServiceWorkflow(t *testing.T) {
	ctx := context.Background()
	client := NewClient(startServer(t))

	var project ProjectReply
	if err := client.Call(ctx, MethodCreateProject, map[string]any{"name": "motor", "pages": []string{"front", "side"}}, &project); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if project.ID == "" || project.Name != "motor" {
		t.Fatalf("unexpected project: %+v", project)
	}
	s, err := project.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := s.Pages.Keys(); len(got) != 2 || got[0] != "front" || got[1] != "side" {
		t.Fatalf("expected pages [front side], got %v", got)
	}

	apply := func(req map[string]any) (ProjectReply, error) {
		req["projectId"] = project.ID
		var out ProjectReply
		err := client.Call(ctx, MethodApply, req, &out)
		return out, err
	}

	if _, err := apply(map[string]any{"op": "add_dropdown", "name": "cover"}); err != nil {
		t.Fatalf("add_dropdown failed: %v", err)
	}
	if _, err := apply(map[string]any{"op": "add_option", "path": "cover", "name": "steel", "fileId": "f-steel"}); err != nil {
		t.Fatalf("add_option failed: %v", err)
	}
	if _, err := apply(map[string]any{"op": "add_leaf", "name": "fan", "fileId": "f-fan"}); err != nil {
		t.Fatalf("add_leaf failed: %v", err)
	}
	got, err := apply(map[string]any{"op": "select", "path": "cover", "option": "steel"})
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	s, err = got.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if keys := s.Components.Keys(); len(keys) != 3 || keys[0] != models.BaseComponent || keys[1] != "cover" || keys[2] != "fan" {
		t.Fatalf("component order not preserved: %v", keys)
	}

	var export struct {
		Status string `json:"status"`
		Design struct {
			ID       string                `json:"id"`
			Hash     string                `json:"hash"`
			Snapshot models.DesignSnapshot `json:"snapshot"`
		} `json:"design"`
	}
	if err := client.Call(ctx, MethodExport, map[string]any{"projectId": project.ID, "name": "v1"}, &export); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if export.Status != ExportCreated || export.Design.Hash == "" {
		t.Fatalf("unexpected export: %+v", export)
	}
	if len(export.Design.Snapshot.SelectionPaths) != 3 {
		t.Fatalf("expected 3 selection paths, got %+v", export.Design.Snapshot.SelectionPaths)
	}

	firstID := export.Design.ID
	if err := client.Call(ctx, MethodExport, map[string]any{"projectId": project.ID}, &export); err != nil {
		t.Fatalf("second Export failed: %v", err)
	}
	if export.Status != ExportUnchanged || export.Design.ID != firstID {
		t.Fatalf("expected unchanged export of %s, got %+v", firstID, export)
	}

	_, err = apply(map[string]any{"op": "delete", "path": "cover"})
	wantCode(t, err, codes.FailedPrecondition)
	if _, err := apply(map[string]any{"op": "toggle", "path": "fan"}); err != nil {
		t.Fatalf("switching off an exported leaf failed: %v", err)
	}
	_, err = apply(map[string]any{"op": "set_file", "path": "fan", "fileId": "f-fan2"})
	wantCode(t, err, codes.FailedPrecondition)
	if _, err := apply(map[string]any{"op": "add_option", "path": "cover", "name": "alu", "fileId": "f-alu"}); err != nil {
		t.Fatalf("adding an option to a locked dropdown failed: %v", err)
	}

	var lock locking.LockStatus
	if err := client.Call(ctx, MethodLockStatus, map[string]any{"projectId": project.ID, "path": "cover"}, &lock); err != nil {
		t.Fatalf("LockStatus failed: %v", err)
	}
	if !lock.IsLocked || lock.LockLevel != locking.LockPartial || !lock.CanEdit || lock.CanDelete {
		t.Fatalf("unexpected lock status: %+v", lock)
	}

	var found struct {
		Exists bool `json:"exists"`
		Design struct {
			ID string `json:"id"`
		} `json:"design"`
	}
	if err := client.Call(ctx, MethodFindDesign, map[string]any{"projectId": project.ID, "hash": export.Design.Hash}, &found); err != nil {
		t.Fatalf("FindDesign failed: %v", err)
	}
	if !found.Exists || found.Design.ID != firstID {
		t.Fatalf("expected design %s, got %+v", firstID, found)
	}
	found.Exists = true
	if err := client.Call(ctx, MethodFindDesign, map[string]any{"projectId": project.ID, "hash": "missing"}, &found); err != nil {
		t.Fatalf("FindDesign failed: %v", err)
	}
	if found.Exists {
		t.Fatalf("expected no design for an unknown hash")
	}

	var list struct {
		Designs []struct {
			ID string `json:"id"`
		} `json:"designs"`
	}
	if err := client.Call(ctx, MethodListDesigns, map[string]any{"projectId": project.ID}, &list); err != nil {
		t.Fatalf("ListDesigns failed: %v", err)
	}
	if len(list.Designs) != 1 {
		t.Fatalf("expected 1 design, got %d", len(list.Designs))
	}

	var layers struct {
		Layers []assets.Layer `json:"layers"`
	}
	if err := client.Call(ctx, MethodResolveAssets, map[string]any{"projectId": project.ID, "page": "front"}, &layers); err != nil {
		t.Fatalf("ResolveAssets failed: %v", err)
	}
	if len(layers.Layers) != 0 {
		t.Fatalf("expected no layers without uploads, got %+v", layers.Layers)
	}

	if err := client.Call(ctx, MethodDeleteDesign, map[string]any{"designId": firstID}, nil); err != nil {
		t.Fatalf("DeleteDesign failed: %v", err)
	}
	if _, err := apply(map[string]any{"op": "delete", "path": "cover"}); err != nil {
		t.Fatalf("delete after releasing the design failed: %v", err)
	}
}

func TestDesignServiceErrorCodes(t *testing.T) {
	ctx := context.Background()
	client := NewClient(startServer(t))

	var project ProjectReply
	if err := client.Call(ctx, MethodCreateProject, map[string]any{"name": "pump", "pages": []string{"front"}}, &project); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	cases := []struct {
		name   string
		method string
		req    map[string]any
		code   codes.Code
	}{
		{"unknown project", MethodGetProject, map[string]any{"projectId": "nope"}, codes.NotFound},
		{"missing project id", MethodUndo, map[string]any{}, codes.InvalidArgument},
		{"empty history", MethodUndo, map[string]any{"projectId": project.ID}, codes.FailedPrecondition},
		{"empty redo", MethodRedo, map[string]any{"projectId": project.ID}, codes.FailedPrecondition},
		{"unknown op", MethodApply, map[string]any{"projectId": project.ID, "op": "explode"}, codes.InvalidArgument},
		{"reserved name", MethodApply, map[string]any{"projectId": project.ID, "op": "add_leaf", "name": "base", "fileId": "f"}, codes.InvalidArgument},
		{"missing node", MethodApply, map[string]any{"projectId": project.ID, "op": "add_option", "path": "ghost", "name": "x", "fileId": "f"}, codes.NotFound},
		{"duplicate page", MethodAddPage, map[string]any{"projectId": project.ID, "page": "front"}, codes.InvalidArgument},
		{"empty project name", MethodCreateProject, map[string]any{"name": ""}, codes.InvalidArgument},
		{"missing hash", MethodFindDesign, map[string]any{"projectId": project.ID}, codes.InvalidArgument},
		{"missing design", MethodDeleteDesign, map[string]any{"designId": "nope"}, codes.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wantCode(t, client.Call(ctx, tc.method, tc.req, nil), tc.code)
		})
	}
}

func TestHealthService(t *testing.T) {
	conn := startServer(t)
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.Status)
	}
}

func TestListAndDeleteProjects(t *testing.T) {
	ctx := context.Background()
	client := NewClient(startServer(t))

	ids := make([]string, 0, 3)
	for _, name := range []string{"motor", "pump", "valve"} {
		var p ProjectReply
		if err := client.Call(ctx, MethodCreateProject, map[string]any{"name": name, "pages": []string{"front"}}, &p); err != nil {
			t.Fatalf("CreateProject %s failed: %v", name, err)
		}
		ids = append(ids, p.ID)
	}

	var list struct {
		Projects []struct {
			ID    string   `json:"id"`
			Pages []string `json:"pages"`
		} `json:"projects"`
	}
	if err := client.Call(ctx, MethodListProjects, map[string]any{"limit": 2}, &list); err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(list.Projects) != 2 || len(list.Projects[0].Pages) != 1 {
		t.Fatalf("unexpected page of projects: %+v", list.Projects)
	}
	wantCode(t, client.Call(ctx, MethodListProjects, map[string]any{"offset": -1}, nil), codes.InvalidArgument)

	if err := client.Call(ctx, MethodDeleteProject, map[string]any{"projectId": ids[1]}, nil); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	wantCode(t, client.Call(ctx, MethodGetProject, map[string]any{"projectId": ids[1]}, nil), codes.NotFound)
	wantCode(t, client.Call(ctx, MethodDeleteProject, map[string]any{"projectId": ids[1]}, nil), codes.NotFound)

	if err := client.Call(ctx, MethodListProjects, map[string]any{}, &list); err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(list.Projects) != 2 {
		t.Fatalf("expected 2 projects after delete, got %d", len(list.Projects))
	}
}

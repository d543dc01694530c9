// Package designservice exposes the editor over gRPC.
package designservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/niczy/designtree/internal/editor"
	"github.com/niczy/designtree/internal/locking"
	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
	"github.com/niczy/designtree/internal/schema"
	"github.com/niczy/designtree/internal/storage"
	"github.com/niczy/designtree/internal/tree"
	"github.com/niczy/designtree/internal/upload"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Export outcomes reported in the status field of an Export response.
const (
	ExportCreated   = "created"
	ExportDuplicate = "duplicate"
	ExportUnchanged = "unchanged"
)

type designServiceServer struct {
	editor *editor.Editor
	log    logrus.FieldLogger
}

func newDesignServiceServer(ed *editor.Editor, logger logrus.FieldLogger) *designServiceServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &designServiceServer{editor: ed, log: logger}
}

// NewGRPCServer constructs a gRPC server for the design service, with the standard health service registered.
func NewGRPCServer(ed *editor.Editor, logger logrus.FieldLogger) *grpc.Server {
	s := newDesignServiceServer(ed, logger)
	srv := grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	srv.RegisterService(&serviceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

func (s *designServiceServer) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := s.log.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start),
	})
	if status.Code(err) == codes.Internal {
		entry.WithError(err).Error("call failed")
	} else {
		entry.Debug("call finished")
	}
	return resp, err
}

type projectRequest struct {
	ProjectID string   `json:"projectId"`
	Name      string   `json:"name"`
	Pages     []string `json:"pages"`
	Page      string   `json:"page"`
	Path      string   `json:"path"`
	Hash      string   `json:"hash"`
}

type listRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type applyRequest struct {
	ProjectID string `json:"projectId"`
	tree.Request
}

type designRequest struct {
	DesignID string `json:"designId"`
}

type projectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Structure string    `json:"structure"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type designResponse struct {
	ID        string                 `json:"id"`
	ProjectID string                 `json:"projectId"`
	Name      string                 `json:"name"`
	Hash      string                 `json:"hash"`
	Snapshot  *models.DesignSnapshot `json:"snapshot"`
	Structure string                 `json:"structure"`
	CreatedAt time.Time              `json:"createdAt"`
}

// structures travel as JSON text: a Struct would not keep component order.
func projectPayload(p *models.Project) (*structpb.Struct, error) {
	raw, err := json.Marshal(p.Structure)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(projectResponse{ID: p.ID, Name: p.Name, Structure: string(raw), CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt})
}

func designView(d *models.Design) (designResponse, error) {
	raw, err := json.Marshal(d.Structure)
	if err != nil {
		return designResponse{}, err
	}
	snap := d.Snapshot
	if snap == nil {
		snap = &models.DesignSnapshot{SelectionPaths: []models.SelectionPath{}}
	}
	return designResponse{
		ID: d.ID, ProjectID: d.ProjectID, Name: d.Name, Hash: d.Hash,
		Snapshot: snap, Structure: string(raw), CreatedAt: d.CreatedAt,
	}, nil
}

func (s *designServiceServer) projectReq(in *structpb.Struct, needProject bool) (projectRequest, error) {
	var req projectRequest
	if err := decode(in, &req); err != nil {
		return req, status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	if needProject && req.ProjectID == "" {
		return req, status.Error(codes.InvalidArgument, "projectId is required")
	}
	return req, nil
}

func (s *designServiceServer) CreateProject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, false)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"name": req.Name, "pages": req.Pages}).Info("CreateProject called")
	p, err := s.editor.CreateProject(ctx, req.Name, req.Pages...)
	if err != nil {
		return nil, toStatus(err)
	}
	return projectPayload(p)
}

func (s *designServiceServer) GetProject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	p, err := s.editor.Project(ctx, req.ProjectID)
	if err != nil {
		return nil, toStatus(err)
	}
	return projectPayload(p)
}

func (s *designServiceServer) ListProjects(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit and offset must not be negative")
	}
	s.log.WithFields(logrus.Fields{"limit": req.Limit, "offset": req.Offset}).Info("ListProjects called")

	projects, err := s.editor.ListProjects(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, toStatus(err)
	}
	type projectInfo struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Pages     []string  `json:"pages"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	infos := make([]projectInfo, 0, len(projects))
	for _, p := range projects {
		info := projectInfo{ID: p.ID, Name: p.Name, Pages: []string{}, UpdatedAt: p.UpdatedAt}
		if p.Structure != nil {
			info.Pages = p.Structure.Pages.Keys()
		}
		infos = append(infos, info)
	}
	return encode(map[string]any{"projects": infos})
}

func (s *designServiceServer) DeleteProject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	s.log.WithField("project", req.ProjectID).Info("DeleteProject called")
	if err := s.editor.DeleteProject(ctx, req.ProjectID); err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"deleted": true})
}

func (s *designServiceServer) Apply(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req applyRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	if req.ProjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "projectId is required")
	}
	s.log.WithFields(logrus.Fields{"project": req.ProjectID, "op": req.Op, "path": req.Path}).Info("Apply called")
	op, err := req.Request.Decode()
	if err != nil {
		return nil, toStatus(err)
	}
	p, err := s.editor.Dispatch(ctx, req.ProjectID, op)
	if err != nil {
		return nil, toStatus(err)
	}
	return projectPayload(p)
}

func (s *designServiceServer) Undo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	p, err := s.editor.Undo(ctx, req.ProjectID)
	if err != nil {
		return nil, toStatus(err)
	}
	return projectPayload(p)
}

func (s *designServiceServer) Redo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	p, err := s.editor.Redo(ctx, req.ProjectID)
	if err != nil {
		return nil, toStatus(err)
	}
	return projectPayload(p)
}

func (s *designServiceServer) AddPage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	p, err := s.editor.AddPage(ctx, req.ProjectID, req.Page)
	if err != nil {
		return nil, toStatus(err)
	}
	return projectPayload(p)
}

// Export reports a duplicate or unchanged selection in the status field instead of failing.
func (s *designServiceServer) Export(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"project": req.ProjectID, "name": req.Name}).Info("Export called")

	outcome := ExportCreated
	d, err := s.editor.Export(ctx, req.ProjectID, req.Name)
	switch {
	case errors.Is(err, editor.ErrDuplicateDesign):
		outcome = ExportDuplicate
	case errors.Is(err, editor.ErrNothingChanged):
		outcome = ExportUnchanged
	case err != nil:
		return nil, toStatus(err)
	}
	view, err := designView(d)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(struct {
		Status string         `json:"status"`
		Design designResponse `json:"design"`
	}{outcome, view})
}

func (s *designServiceServer) FindDesign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	if req.Hash == "" {
		return nil, status.Error(codes.InvalidArgument, "hash is required")
	}
	d, err := s.editor.FindDesign(ctx, req.ProjectID, req.Hash)
	if errors.Is(err, storage.ErrDesignNotFound) {
		return encode(map[string]any{"exists": false})
	}
	if err != nil {
		return nil, toStatus(err)
	}
	view, err := designView(d)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"exists": true, "design": view})
}

func (s *designServiceServer) ListDesigns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	designs, err := s.editor.Designs(ctx, req.ProjectID)
	if err != nil {
		return nil, toStatus(err)
	}
	views := make([]designResponse, 0, len(designs))
	for _, d := range designs {
		v, err := designView(d)
		if err != nil {
			return nil, toStatus(err)
		}
		views = append(views, v)
	}
	return encode(map[string]any{"designs": views})
}

func (s *designServiceServer) DeleteDesign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req designRequest
	if err := decode(in, &req); err != nil || req.DesignID == "" {
		return nil, status.Error(codes.InvalidArgument, "designId is required")
	}
	s.log.WithField("design", req.DesignID).Info("DeleteDesign called")
	if err := s.editor.DeleteDesign(ctx, req.DesignID); err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"deleted": true})
}

func (s *designServiceServer) LockStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	p, err := nodepath.Parse(req.Path)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := s.editor.LockStatus(ctx, req.ProjectID, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(st)
}

func (s *designServiceServer) ResolveAssets(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.projectReq(in, true)
	if err != nil {
		return nil, err
	}
	layers, err := s.editor.ResolveAssets(ctx, req.ProjectID, req.Page)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"layers": layers})
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, locking.ErrLocked),
		errors.Is(err, editor.ErrNothingToUndo),
		errors.Is(err, editor.ErrNothingToRedo):
		code = codes.FailedPrecondition
	case errors.Is(err, storage.ErrProjectNotFound),
		errors.Is(err, storage.ErrDesignNotFound),
		errors.Is(err, tree.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, storage.ErrDesignExists),
		errors.Is(err, storage.ErrProjectExists),
		errors.Is(err, editor.ErrDuplicateDesign):
		code = codes.AlreadyExists
	case errors.Is(err, nodepath.ErrInvalidPath),
		errors.Is(err, nodepath.ErrInvalidName),
		errors.Is(err, tree.ErrDuplicateName),
		errors.Is(err, tree.ErrReserved),
		errors.Is(err, tree.ErrWrongKind),
		errors.Is(err, tree.ErrUnknownOperation),
		errors.Is(err, upload.ErrInvalidPartName),
		errors.Is(err, upload.ErrFileCountMismatch),
		errors.Is(err, upload.ErrUnknownPage),
		errors.Is(err, upload.ErrNotSVG),
		errors.Is(err, schema.ErrInvalidDocument),
		errors.Is(err, editor.ErrDuplicatePage),
		errors.Is(err, storage.ErrInvalidInput):
		code = codes.InvalidArgument
	}
	return status.Error(code, err.Error())
}

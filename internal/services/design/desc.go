package designservice

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "designtree.v1.DesignService"

// Method names of the service.
const (
	MethodCreateProject = "CreateProject"
	MethodGetProject    = "GetProject"
	MethodListProjects  = "ListProjects"
	MethodDeleteProject = "DeleteProject"
	MethodApply         = "Apply"
	MethodUndo          = "Undo"
	MethodRedo          = "Redo"
	MethodAddPage       = "AddPage"
	MethodExport        = "Export"
	MethodFindDesign    = "FindDesign"
	MethodListDesigns   = "ListDesigns"
	MethodDeleteDesign  = "DeleteDesign"
	MethodLockStatus    = "LockStatus"
	MethodResolveAssets = "ResolveAssets"
)

type handlerFunc func(s *designServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

var handlers = map[string]handlerFunc{
	MethodCreateProject: (*designServiceServer).CreateProject,
	MethodGetProject:    (*designServiceServer).GetProject,
	MethodListProjects:  (*designServiceServer).ListProjects,
	MethodDeleteProject: (*designServiceServer).DeleteProject,
	MethodApply:         (*designServiceServer).Apply,
	MethodUndo:          (*designServiceServer).Undo,
	MethodRedo:          (*designServiceServer).Redo,
	MethodAddPage:       (*designServiceServer).AddPage,
	MethodExport:        (*designServiceServer).Export,
	MethodFindDesign:    (*designServiceServer).FindDesign,
	MethodListDesigns:   (*designServiceServer).ListDesigns,
	MethodDeleteDesign:  (*designServiceServer).DeleteDesign,
	MethodLockStatus:    (*designServiceServer).LockStatus,
	MethodResolveAssets: (*designServiceServer).ResolveAssets,
}

// serviceDesc is written by hand; every method takes and returns a google.protobuf.Struct.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*interface{})(nil),
	Methods:     methodDescs(),
	Metadata:    "designtree/v1/design.proto",
}

func methodDescs() []grpc.MethodDesc {
	names := []string{
		MethodCreateProject, MethodGetProject, MethodListProjects, MethodDeleteProject, MethodApply, MethodUndo, MethodRedo, MethodAddPage,
		MethodExport, MethodFindDesign, MethodListDesigns, MethodDeleteDesign, MethodLockStatus, MethodResolveAssets,
	}
	out := make([]grpc.MethodDesc, 0, len(names))
	for _, name := range names {
		out = append(out, grpc.MethodDesc{MethodName: name, Handler: unaryHandler(name)})
	}
	return out
}

func unaryHandler(method string) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	fn := handlers[method]
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*designServiceServer)
		if interceptor == nil {
			return fn(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(s, ctx, req.(*structpb.Struct))
		})
	}
}

// decode copies a Struct payload into a typed request.
func decode(in *structpb.Struct, out any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// encode turns a typed response into a Struct payload.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

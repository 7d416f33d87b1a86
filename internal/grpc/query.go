package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/apperr"
	"fleetwatch/tracking/internal/logging"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/position"
)

const (
	serviceName            = "fleetwatch.tracking.v1.TrackingQueryService"
	resolveScopeMethod     = "/" + serviceName + "/ResolveScope"
	currentPositionsMethod = "/" + serviceName + "/CurrentPositions"
)

// TrackingQueryService is the internal read API for sibling services. Both
// methods take {"callerId", "role", "orgId"} and answer for that caller.
type TrackingQueryService interface {
	ResolveScope(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CurrentPositions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type TrackingQueryServer struct {
	resolver  *access.Resolver
	positions *position.Service
	logger    *slog.Logger
}

var _ TrackingQueryService = (*TrackingQueryServer)(nil)

func NewTrackingQueryServer(resolver *access.Resolver, positions *position.Service, logger *slog.Logger) *TrackingQueryServer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TrackingQueryServer{resolver: resolver, positions: positions, logger: logger}
}

func (s *TrackingQueryServer) ResolveScope(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFromRequest(req)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, "resolve scope", err)
	}
	riders, err := s.resolver.RiderScope(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, "resolve rider scope", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"vehicleIds": stringList(vehicles.IDs()),
		"riderIds":   stringList(riders.IDs()),
	})
}

func (s *TrackingQueryServer) CurrentPositions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFromRequest(req)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.positions.CurrentFor(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, "current positions", err)
	}
	items := make([]interface{}, 0, len(vehicles))
	for _, v := range vehicles {
		items = append(items, mapVehicle(v))
	}
	return structpb.NewStruct(map[string]interface{}{"vehicles": items})
}

func (s *TrackingQueryServer) toStatus(ctx context.Context, op string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return status.Error(codes.InvalidArgument, apperr.CodeOf(err))
	case apperr.KindAccessDenied:
		return status.Error(codes.PermissionDenied, apperr.CodeOf(err))
	case apperr.KindNotFound:
		return status.Error(codes.NotFound, apperr.CodeOf(err))
	}
	s.logger.ErrorContext(ctx, "grpc query failed", "op", op, "error", err)
	return status.Error(codes.Internal, apperr.CodeServerError)
}

func callerFromRequest(req *structpb.Struct) (access.Caller, error) {
	fields := req.GetFields()
	caller := access.Caller{
		ID:    strings.TrimSpace(fields["callerId"].GetStringValue()),
		OrgID: strings.TrimSpace(fields["orgId"].GetStringValue()),
	}
	role := strings.TrimSpace(fields["role"].GetStringValue())
	if caller.ID == "" {
		return access.Caller{}, status.Error(codes.InvalidArgument, "callerId required")
	}
	if role == "" {
		return access.Caller{}, status.Error(codes.InvalidArgument, "role required")
	}
	// unknown roles resolve to the empty scope rather than failing the call
	caller.Role, _ = model.ParseRole(role)
	return caller, nil
}

func mapVehicle(v model.Vehicle) map[string]interface{} {
	out := map[string]interface{}{
		"id":       v.ID,
		"orgId":    v.OrgID,
		"label":    v.Label,
		"capacity": float64(v.Capacity),
		"status":   string(v.Status),
	}
	if v.Position != nil {
		pos := map[string]interface{}{
			"latitude":   v.Position.Latitude,
			"longitude":  v.Position.Longitude,
			"speed":      v.Position.Speed,
			"recordedAt": v.Position.RecordedAt.UTC().Format(time.RFC3339Nano),
		}
		if v.Position.Heading != nil {
			pos["heading"] = *v.Position.Heading
		}
		out["position"] = pos
	}
	return out
}

func stringList(values []string) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

// Service registration. Messages are google.protobuf.Struct, so the
// descriptor is declared here instead of generated.

func RegisterTrackingQueryServer(s grpc.ServiceRegistrar, srv TrackingQueryService) {
	s.RegisterService(&trackingQueryServiceDesc, srv)
}

var trackingQueryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TrackingQueryService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveScope", Handler: resolveScopeHandler},
		{MethodName: "CurrentPositions", Handler: currentPositionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fleetwatch/tracking/v1/query.proto",
}

func resolveScopeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TrackingQueryService).ResolveScope(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveScopeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TrackingQueryService).ResolveScope(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func currentPositionsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TrackingQueryService).CurrentPositions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: currentPositionsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TrackingQueryService).CurrentPositions(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

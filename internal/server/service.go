package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ChuLiYu/decision-engine/internal/planner"
)

const (
	ServiceName = "decisionengine.v1.Planner"

	trainMethod = "/" + ServiceName + "/Train"
	planMethod  = "/" + ServiceName + "/Plan"
)

// PlannerServer is the server API for the Planner service.
type PlannerServer interface {
	Train(context.Context, *planner.TrainRequest) (*planner.TrainResult, error)
	Plan(context.Context, *planner.PlanRequest) (*planner.PlanResult, error)
}

// RegisterPlannerServer attaches srv to a gRPC service registrar.
func RegisterPlannerServer(s grpc.ServiceRegistrar, srv PlannerServer) {
	s.RegisterService(&plannerServiceDesc, srv)
}

var plannerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlannerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Train", Handler: trainHandler},
		{MethodName: "Plan", Handler: planHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "decisionengine/v1/planner",
}

func trainHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(planner.TrainRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlannerServer).Train(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: trainMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PlannerServer).Train(ctx, req.(*planner.TrainRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func planHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(planner.PlanRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlannerServer).Plan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: planMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PlannerServer).Plan(ctx, req.(*planner.PlanRequest))
	}
	return interceptor(ctx, in, info, handler)
}

package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified method names of scorekeeper.v1.FormulaService.
const (
	ServiceName          = "scorekeeper.v1.FormulaService"
	EvaluateFullMethod   = "/" + ServiceName + "/Evaluate"
	ValidateFullMethod   = "/" + ServiceName + "/Validate"
	formulaServiceSchema = "scorekeeper/v1/formula.proto"
)

// FormulaServiceServer is the server API for scorekeeper.v1.FormulaService.
// Requests and responses are google.protobuf.Struct documents.
type FormulaServiceServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterFormulaServiceServer registers srv on s.
func RegisterFormulaServiceServer(s grpc.ServiceRegistrar, srv FormulaServiceServer) {
	s.RegisterService(&FormulaServiceDesc, srv)
}

// FormulaServiceDesc is the grpc.ServiceDesc for scorekeeper.v1.FormulaService.
var FormulaServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FormulaServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "Validate", Handler: validateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: formulaServiceSchema,
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FormulaServiceServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FormulaServiceServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func validateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FormulaServiceServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FormulaServiceServer).Validate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// FormulaServiceClient is the client API for scorekeeper.v1.FormulaService.
type FormulaServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewFormulaServiceClient creates a client over cc.
func NewFormulaServiceClient(cc grpc.ClientConnInterface) *FormulaServiceClient {
	return &FormulaServiceClient{cc: cc}
}

// Evaluate calls FormulaService.Evaluate.
func (c *FormulaServiceClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EvaluateFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate calls FormulaService.Validate.
func (c *FormulaServiceClient) Validate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ValidateFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

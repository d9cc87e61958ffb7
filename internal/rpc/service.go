// Package rpc exposes signal submission over gRPC for the external parser
// process. Messages are google.protobuf.Struct so no generated code is needed.
package rpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net"

	"signal-executor/internal/order"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "signalexecutor.SignalService"
	submitMethod     = "/" + ServiceName + "/Submit"
	apiKeyMetadata   = "x-api-key"
	defaultSourceTag = "grpc"
)

// SignalServer is the server API for SignalService.
type SignalServer interface {
	Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func _SignalService_Submit_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SignalServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SignalServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SignalServiceDesc describes SignalService for grpc.Server.RegisterService.
var SignalServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SignalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: _SignalService_Submit_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "signal_service.proto",
}

// Service adapts the signal intake to SignalServer.
type Service struct {
	intake order.Submitter
}

func NewService(intake order.Submitter) *Service {
	return &Service{intake: intake}
}

// Submit decodes a signal from the struct's JSON form and queues it.
func (s *Service) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode signal: %v", err)
	}
	sig, err := decodeSignal(raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	queued, err := s.intake.Submit(ctx, sig)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"signal_id": queued.ID,
		"symbol":    queued.Symbol,
		"stage":     string(order.StageQueued),
	})
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, order.ErrInvalidSignal):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, order.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, order.ErrQueueClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// APIKeyInterceptor rejects calls without the control API key. An empty key
// disables the check.
func APIKeyInterceptor(key string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if key == "" {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		vals := md.Get(apiKeyMetadata)
		if len(vals) == 0 || subtle.ConstantTimeCompare([]byte(vals[0]), []byte(key)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}
		return handler(ctx, req)
	}
}

// NewServer builds a grpc.Server with SignalService registered.
func NewServer(intake order.Submitter, apiKey string) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logInterceptor, APIKeyInterceptor(apiKey)))
	srv.RegisterService(&SignalServiceDesc, NewService(intake))
	return srv
}

// Serve listens on addr until srv is stopped.
func Serve(srv *grpc.Server, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Printf("✓ gRPC signal service listening on %s", addr)
	return srv.Serve(lis)
}

func logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		log.Printf("[RPC] %s | %v", info.FullMethod, status.Code(err))
	}
	return resp, err
}

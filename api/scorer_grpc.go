// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ScorerClient is the client API for Scorer service.
type ScorerClient interface {
	Score(ctx context.Context, in *ScoreRequest, opts ...grpc.CallOption) (*ScoreResponse, error)
}

type scorerClient struct {
	cc grpc.ClientConnInterface
}

func NewScorerClient(cc grpc.ClientConnInterface) ScorerClient {
	return &scorerClient{cc}
}

func (c *scorerClient) Score(ctx context.Context, in *ScoreRequest, opts ...grpc.CallOption) (*ScoreResponse, error) {
	out := new(ScoreResponse)
	err := c.cc.Invoke(ctx, "/beamflow.Scorer/Score", in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScorerServer is the server API for Scorer service.
// All implementations must embed UnimplementedScorerServer
// for forward compatibility.
type ScorerServer interface {
	Score(context.Context, *ScoreRequest) (*ScoreResponse, error)
	mustEmbedUnimplementedScorerServer()
}

// UnimplementedScorerServer must be embedded to have forward compatible implementations.
type UnimplementedScorerServer struct{}

func (UnimplementedScorerServer) Score(context.Context, *ScoreRequest) (*ScoreResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Score not implemented")
}
func (UnimplementedScorerServer) mustEmbedUnimplementedScorerServer() {}

func RegisterScorerServer(s *grpc.Server, srv ScorerServer) {
	s.RegisterService(&Scorer_ServiceDesc, srv)
}

func _Scorer_Score_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ScoreRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScorerServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/beamflow.Scorer/Score",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScorerServer).Score(ctx, req.(*ScoreRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Scorer_ServiceDesc is the grpc.ServiceDesc for Scorer service.
var Scorer_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "beamflow.Scorer",
	HandlerType: (*ScorerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Score",
			Handler:    _Scorer_Score_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "beamflow.json",
}

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

// TranslatorClient is the client API for Translator service.
type TranslatorClient interface {
	Translate(ctx context.Context, in *TranslateRequest, opts ...grpc.CallOption) (*TranslateResponse, error)
	TranslateStream(ctx context.Context, in *TranslateRequest, opts ...grpc.CallOption) (Translator_TranslateStreamClient, error)
}

type translatorClient struct {
	cc grpc.ClientConnInterface
}

func NewTranslatorClient(cc grpc.ClientConnInterface) TranslatorClient {
	return &translatorClient{cc}
}

func (c *translatorClient) Translate(ctx context.Context, in *TranslateRequest, opts ...grpc.CallOption) (*TranslateResponse, error) {
	out := new(TranslateResponse)
	err := c.cc.Invoke(ctx, "/beamflow.Translator/Translate", in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *translatorClient) TranslateStream(ctx context.Context, in *TranslateRequest, opts ...grpc.CallOption) (Translator_TranslateStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &Translator_ServiceDesc.Streams[0], "/beamflow.Translator/TranslateStream", withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &translatorTranslateStreamClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type Translator_TranslateStreamClient interface {
	Recv() (*TranslateStreamResponse, error)
	grpc.ClientStream
}

type translatorTranslateStreamClient struct {
	grpc.ClientStream
}

func (x *translatorTranslateStreamClient) Recv() (*TranslateStreamResponse, error) {
	m := new(TranslateStreamResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// TranslatorServer is the server API for Translator service.
// All implementations must embed UnimplementedTranslatorServer
// for forward compatibility.
type TranslatorServer interface {
	Translate(context.Context, *TranslateRequest) (*TranslateResponse, error)
	TranslateStream(*TranslateRequest, Translator_TranslateStreamServer) error
	mustEmbedUnimplementedTranslatorServer()
}

// UnimplementedTranslatorServer must be embedded to have forward compatible implementations.
type UnimplementedTranslatorServer struct{}

func (UnimplementedTranslatorServer) Translate(context.Context, *TranslateRequest) (*TranslateResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Translate not implemented")
}
func (UnimplementedTranslatorServer) TranslateStream(*TranslateRequest, Translator_TranslateStreamServer) error {
	return status.Errorf(codes.Unimplemented, "method TranslateStream not implemented")
}
func (UnimplementedTranslatorServer) mustEmbedUnimplementedTranslatorServer() {}

func RegisterTranslatorServer(s *grpc.Server, srv TranslatorServer) {
	s.RegisterService(&Translator_ServiceDesc, srv)
}

func _Translator_Translate_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TranslateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TranslatorServer).Translate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/beamflow.Translator/Translate",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TranslatorServer).Translate(ctx, req.(*TranslateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Translator_TranslateStream_Handler(srv any, stream grpc.ServerStream) error {
	m := new(TranslateRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(TranslatorServer).TranslateStream(m, &translatorTranslateStreamServer{stream})
}

type Translator_TranslateStreamServer interface {
	Send(*TranslateStreamResponse) error
	grpc.ServerStream
}

type translatorTranslateStreamServer struct {
	grpc.ServerStream
}

func (x *translatorTranslateStreamServer) Send(m *TranslateStreamResponse) error {
	return x.ServerStream.SendMsg(m)
}

// Translator_ServiceDesc is the grpc.ServiceDesc for Translator service.
var Translator_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "beamflow.Translator",
	HandlerType: (*TranslatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Translate",
			Handler:    _Translator_Translate_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "TranslateStream",
			Handler:       _Translator_TranslateStream_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "beamflow.json",
}

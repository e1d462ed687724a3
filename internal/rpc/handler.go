package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// unaryHandler builds a grpc.MethodDesc.Handler for a single RPC method from
// a typed call function, so each service in this package only has to state
// "decode a *Req, call this method on the server implementation" instead of
// repeating the interceptor plumbing protoc-gen-go-grpc would normally emit.
func unaryHandler[Req any, Resp any](call func(srv any, ctx context.Context, req *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(c context.Context, req any) (any, error) {
			return call(srv, c, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

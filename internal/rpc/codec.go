// Package rpc defines the wire surface of the sentinel dispatcher: a JSON
// codec registered with grpc-go, hand-rolled service descriptors for the
// five services, and typed clients for them.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used by all sentinel RPCs. Both
// sides resolve the codec from the registry, so the health service keeps
// its default proto encoding untouched.
const CodecName = "sentinel-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

// CallOption selects the sentinel codec on outgoing calls.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}

// methodHandler matches the handler signature expected by grpc.MethodDesc.
type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

// unaryHandler adapts a typed service method to the grpc.MethodDesc handler
// signature, routing through the server's interceptor chain.
func unaryHandler[Req any](fullMethod string, invoke func(srv any, ctx context.Context, req *Req) (any, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, fmt.Errorf("decode %s request: %w", fullMethod, err)
		}
		if interceptor == nil {
			return invoke(srv, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
			return invoke(srv, ctx, r.(*Req))
		})
	}
}

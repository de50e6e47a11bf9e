package cerr

import (
	"context"

	"connectrpc.com/connect"
)

// connectErrorInterceptor turns handler errors into *connect.Error so Connect and gRPC clients
// see the mapped Code and Msg instead of an opaque Unknown. Client-side calls pass through.
type connectErrorInterceptor struct{}

func NewConvertConnectErrorInterceptor() connect.Interceptor {
	return connectErrorInterceptor{}
}

func (connectErrorInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		resp, err := next(ctx, req)
		if err != nil {
			return nil, ExtractConnectError(ctx, err)
		}
		return resp, nil
	}
}

func (connectErrorInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (connectErrorInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return ExtractConnectError(ctx, next(ctx, conn))
	}
}

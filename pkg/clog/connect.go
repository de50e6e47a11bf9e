package clog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"
)

type connectConfig struct {
	Filter func(spec connect.Spec) bool
}

type ConnectOption interface {
	apply(*connectConfig)
}

type connectOptionFunc func(*connectConfig)

func (o connectOptionFunc) apply(c *connectConfig) {
	o(c)
}

func WithConnectFilter(filter func(connect.Spec) bool) ConnectOption {
	return connectOptionFunc(func(cfg *connectConfig) {
		cfg.Filter = filter
	})
}

func DefaultConnectHealthCheckFilter(spec connect.Spec) bool {
	return spec.Procedure != "/grpc.health.v1.Health/Check"
}

type slogConnectInterceptor struct {
	cfg connectConfig
}

// NewSlogConnectInterceptor logs one line per finished connect call, unary or streaming.
func NewSlogConnectInterceptor(opts ...ConnectOption) connect.Interceptor {
	cfg := connectConfig{}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &slogConnectInterceptor{cfg: cfg}
}

func (s *slogConnectInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		startTime := time.Now()
		newCtx := s.begin(ctx, req.Spec())
		AddAttribute(newCtx, "method", req.HTTPMethod())
		resp, err := next(newCtx, req)
		s.finish(newCtx, req.Spec(), startTime, err)
		return resp, err
	}
}

func (s *slogConnectInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (s *slogConnectInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		startTime := time.Now()
		newCtx := s.begin(ctx, conn.Spec())
		slog.DebugContext(newCtx, "Connected")
		err := next(newCtx, conn)
		s.finish(newCtx, conn.Spec(), startTime, err)
		return err
	}
}

func (s *slogConnectInterceptor) begin(ctx context.Context, spec connect.Spec) context.Context {
	newCtx := ContextWithSlog(ctx)
	AddAttributes(newCtx, map[string]any{
		"path":        spec.Procedure,
		"stream_type": spec.StreamType.String(),
	})
	return newCtx
}

func (s *slogConnectInterceptor) finish(ctx context.Context, spec connect.Spec, startTime time.Time, err error) {
	if s.cfg.Filter != nil && !s.cfg.Filter(spec) {
		return
	}
	codeStr := "ok"
	var cerr *connect.Error
	if err != nil {
		if !errors.As(err, &cerr) {
			cerr = connect.NewError(connect.CodeUnknown, err)
		}
		codeStr = cerr.Code().String()
	}
	AddAttributes(ctx, map[string]any{
		"code":     codeStr,
		"duration": time.Since(startTime),
	})
	if cerr == nil {
		slog.InfoContext(ctx, "Finished")
		return
	}
	logConnectError(ctx, cerr)
}

func logConnectError(ctx context.Context, cerr *connect.Error) {
	if errDetails := cerr.Details(); len(errDetails) > 0 {
		details := make([]proto.Message, 0, len(errDetails))
		for _, detail := range errDetails {
			val, err := detail.Value()
			if err != nil {
				slog.ErrorContext(ctx, "failed to convert detail value", ErrorAttributeKey, err)
				continue
			}
			details = append(details, val)
		}
		AddAttribute(ctx, "err_details", details)
	}

	switch ConnectCodeToLevel(cerr.Code()) {
	case LevelError:
		slog.ErrorContext(ctx, cerr.Message())
	case LevelWarn:
		slog.WarnContext(ctx, cerr.Message())
	case LevelInfo:
		slog.InfoContext(ctx, cerr.Message())
	case LevelDebug:
		slog.DebugContext(ctx, cerr.Message())
	}
}

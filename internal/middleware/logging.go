package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/metrics"
)

// LoggingInterceptor logs every RPC with its procedure, principal, result
// code and duration, and records it in metrics. Streams are logged when
// they end. Install it before AuthInterceptor so rejected calls are logged
// too; the principal is still reported for authenticated calls.
type LoggingInterceptor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ connect.Interceptor = (*LoggingInterceptor)(nil)

// NewLoggingInterceptor creates a LoggingInterceptor. m may be nil.
func NewLoggingInterceptor(logger *slog.Logger, m *metrics.Metrics) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger, metrics: m}
}

func (i *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		ctx, call := withCallInfo(ctx)
		resp, err := next(ctx, req)
		i.record(call, req.Spec().Procedure, start, err)
		return resp, err
	}
}

// WrapStreamingClient leaves outgoing streams untouched.
func (i *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		ctx, call := withCallInfo(ctx)
		err := next(ctx, conn)
		i.record(call, conn.Spec().Procedure, start, err)
		return err
	}
}

func (i *LoggingInterceptor) record(call *callInfo, procedure string, start time.Time, err error) {
	elapsed := time.Since(start)
	userID := call.principal.ID
	code := "ok"

	if err != nil {
		var connectErr *connect.Error
		if errors.As(err, &connectErr) {
			code = connectErr.Code().String()
			i.logger.Warn("RPC error",
				"procedure", procedure,
				"code", code,
				"error", connectErr.Message(),
				"user_id", userID,
				"duration_ms", elapsed.Milliseconds(),
			)
		} else {
			code = connect.CodeUnknown.String()
			i.logger.Error("RPC error",
				"procedure", procedure,
				"error", err,
				"user_id", userID,
				"duration_ms", elapsed.Milliseconds(),
			)
		}
	} else {
		i.logger.Info("RPC ok",
			"procedure", procedure,
			"user_id", userID,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	i.metrics.ObserveRPC(procedure, code, elapsed)
}

// callInfo lets inner interceptors report back to the logging interceptor.
type callInfo struct {
	principal auth.Principal
}

type callInfoKey struct{}

func withCallInfo(ctx context.Context) (context.Context, *callInfo) {
	call := &callInfo{}
	return context.WithValue(ctx, callInfoKey{}, call), call
}

func setCallPrincipal(ctx context.Context, p auth.Principal) {
	if call, ok := ctx.Value(callInfoKey{}).(*callInfo); ok {
		call.principal = p
	}
}

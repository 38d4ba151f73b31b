package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ogurasousui/site-access/internal/platform/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	authorizationHeader = "authorization"
	bearerPrefix        = "bearer "
)

// TokenVerifier はベアラートークンを検証します。
type TokenVerifier interface {
	Verify(token string) (*auth.Principal, error)
}

// AuthUnaryInterceptor は authorization メタデータのベアラートークンを検証し、主体をコンテキストに設定します。
// トークンがなければ匿名のまま処理を続け、不正なトークンは Unauthenticated で拒否します。
func AuthUnaryInterceptor(verifier TokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		token, ok := bearerToken(ctx)
		if !ok {
			return handler(ctx, req)
		}

		principal, err := verifier.Verify(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(auth.WithPrincipal(ctx, principal), req)
	}
}

// LoggingUnaryInterceptor は RPC ごとにメソッド・結果コード・所要時間を記録します。
// 入場拒否は想定された結果のため info、ストレージ障害と内部エラーは error で出力します。
func LoggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		attrs := []any{
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
		}
		if operator := auth.OperatorID(ctx); operator != nil {
			attrs = append(attrs, slog.String("operator", *operator))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", status.Convert(err).Message()))
		}

		logger.Log(ctx, levelFor(code), "grpc request", attrs...)
		return resp, err
	}
}

func levelFor(code codes.Code) slog.Level {
	switch code {
	case codes.OK, codes.FailedPrecondition, codes.NotFound:
		return slog.LevelInfo
	case codes.Unavailable, codes.Internal, codes.Unknown, codes.DataLoss:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func bearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return "", false
	}
	raw := strings.TrimSpace(values[0])
	if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return raw, raw != ""
	}
	return strings.TrimSpace(raw[len(bearerPrefix):]), true
}

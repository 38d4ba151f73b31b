package server

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/ogurasousui/site-access/internal/platform/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type stubVerifier struct {
	token     string
	principal *auth.Principal
}

func (v stubVerifier) Verify(token string) (*auth.Principal, error) {
	if token != v.token {
		return nil, auth.ErrInvalidToken
	}
	return v.principal, nil
}

func TestAuthUnaryInterceptor(t *testing.T) {
	t.Parallel()

	verifier := stubVerifier{token: "good", principal: &auth.Principal{ID: "usher-1", Role: auth.RoleUsher}}
	interceptor := AuthUnaryInterceptor(verifier)
	info := &grpc.UnaryServerInfo{FullMethod: "/siteaccess.v1.AccessService/RecordDecision"}

	tests := []struct {
		name         string
		header       string
		wantCode     codes.Code
		wantOperator string
	}{
		{name: "no header", wantCode: codes.OK},
		{name: "valid bearer", header: "Bearer good", wantCode: codes.OK, wantOperator: "usher-1"},
		{name: "lowercase scheme", header: "bearer good", wantCode: codes.OK, wantOperator: "usher-1"},
		{name: "invalid token", header: "Bearer bad", wantCode: codes.Unauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			if tt.header != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", tt.header))
			}

			var gotOperator string
			handler := func(ctx context.Context, req any) (any, error) {
				if op := auth.OperatorID(ctx); op != nil {
					gotOperator = *op
				}
				return "ok", nil
			}

			_, err := interceptor(ctx, nil, info, handler)
			if status.Code(err) != tt.wantCode {
				t.Fatalf("expected %v, got %v", tt.wantCode, err)
			}
			if gotOperator != tt.wantOperator {
				t.Errorf("expected operator %q, got %q", tt.wantOperator, gotOperator)
			}
		})
	}
}

func TestLoggingUnaryInterceptor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	interceptor := LoggingUnaryInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/siteaccess.v1.AccessService/RecordDecision"}

	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{ID: "usher-1", Role: auth.RoleUsher})
	_, err := interceptor(ctx, nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.Unavailable, "storage timeout")
	})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected error to pass through, got %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"level":"ERROR"`, `"method":"/siteaccess.v1.AccessService/RecordDecision"`, `"code":"Unavailable"`, `"operator":"usher-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestLevelFor(t *testing.T) {
	t.Parallel()

	tests := map[codes.Code]slog.Level{
		codes.OK:                 slog.LevelInfo,
		codes.FailedPrecondition: slog.LevelInfo,
		codes.InvalidArgument:    slog.LevelWarn,
		codes.PermissionDenied:   slog.LevelWarn,
		codes.Unavailable:        slog.LevelError,
		codes.Internal:           slog.LevelError,
	}
	for code, want := range tests {
		if got := levelFor(code); got != want {
			t.Errorf("levelFor(%v) = %v, want %v", code, got, want)
		}
	}
}

func TestBearerToken_Missing(t *testing.T) {
	t.Parallel()

	if _, ok := bearerToken(context.Background()); ok {
		t.Fatal("expected no token without metadata")
	}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "v"))
	if _, ok := bearerToken(ctx); ok {
		t.Fatal("expected no token without authorization header")
	}
}


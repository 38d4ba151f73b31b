package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

// Server は gRPC サーバーと運用 HTTP サーバーのライフサイクルを管理します。
type Server struct {
	listenAddr string
	grpcServer *grpc.Server
	httpServer *http.Server
	logger     *slog.Logger
}

// Config は Server の構築に必要な設定です。
type Config struct {
	ListenAddr     string
	HTTPListenAddr string
	Logger         *slog.Logger
	// HTTPHandler が nil の場合、運用 HTTP サーバーは起動しません。
	HTTPHandler http.Handler
}

// New は gRPC サーバーを構築し、register でサービスを登録します。
func New(cfg Config, register func(grpc.ServiceRegistrar), opts ...grpc.ServerOption) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := grpc.NewServer(opts...)
	if register != nil {
		register(srv)
	}

	s := &Server{
		listenAddr: cfg.ListenAddr,
		grpcServer: srv,
		logger:     logger,
	}
	if cfg.HTTPHandler != nil && cfg.HTTPListenAddr != "" {
		s.httpServer = &http.Server{
			Addr:              cfg.HTTPListenAddr,
			Handler:           cfg.HTTPHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

// Run はサーバーを起動し、コンテキストがキャンセルされると GracefulStop します。
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listenAddr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve は lis で gRPC を待ち受けます。運用 HTTP サーバーが設定されていれば並行して起動します。
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("grpc server listening", slog.String("addr", lis.Addr().String()))
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})

	if s.httpServer != nil {
		g.Go(func() error {
			s.logger.Info("ops http server listening", slog.String("addr", s.httpServer.Addr))
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve HTTP: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.GracefulStop()
		return nil
	})

	return g.Wait()
}

// GracefulStop はサーバーを安全に停止します。
func (s *Server) GracefulStop() {
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("ops http shutdown", slog.Any("error", err))
		}
	}
	s.grpcServer.GracefulStop()
}

package handler

import (
	"context"

	"github.com/ogurasousui/site-access/internal/adapters/grpc/wire"
	"github.com/ogurasousui/site-access/internal/core/access"
	"github.com/ogurasousui/site-access/internal/platform/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// AccessGrpcHandler は AccessService の gRPC 実装です。
type AccessGrpcHandler struct {
	svc access.UseCase
}

var _ wire.AccessServer = (*AccessGrpcHandler)(nil)

// NewAccessGrpcHandler は AccessGrpcHandler を生成します。
func NewAccessGrpcHandler(svc access.UseCase) *AccessGrpcHandler {
	return &AccessGrpcHandler{svc: svc}
}

// ScanIdentifier はスキャンされた識別子を従業員の表示情報に解決します。
func (h *AccessGrpcHandler) ScanIdentifier(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	view, err := h.svc.ScanIdentifier(ctx, wire.ParseScanRequest(req))
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(wire.EncodeEmployeeView(view))
}

// RecordDecision は判定を記録します。オペレーターは認証済みの主体から決定し、要求の値は使いません。
func (h *AccessGrpcHandler) RecordDecision(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	in := wire.ParseDecisionRequest(req)
	in.OperatorID = auth.OperatorID(ctx)

	recorded, err := h.svc.RecordDecision(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(wire.EncodeActivity(recorded))
}

// ListRecentActivity は直近の判定を新しい順に返します。
func (h *AccessGrpcHandler) ListRecentActivity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	filter, err := wire.ParseListRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	found, err := h.svc.ListRecentActivity(ctx, filter)
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(wire.EncodeActivities(found))
}

// BulkCloseStaleEntries は前日以前の滞留入場を一括で退場させます。管理者のみ実行できます。
func (h *AccessGrpcHandler) BulkCloseStaleEntries(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.RequireRole(ctx, auth.RoleAdmin); err != nil {
		return nil, toStatusError(err)
	}

	result, err := h.svc.BulkCloseStaleEntries(ctx, auth.OperatorID(ctx))
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(wire.EncodeBulkClose(result))
}

// CurrentOccupancy は業者の在場人数と上限を返します。
func (h *AccessGrpcHandler) CurrentOccupancy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	view, err := h.svc.CurrentOccupancy(ctx, wire.ParseOccupancyRequest(req))
	if err != nil {
		return nil, toStatusError(err)
	}

	return encodeResponse(wire.EncodeOccupancy(view))
}

func encodeResponse(resp *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

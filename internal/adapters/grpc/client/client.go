// Package client は AccessService を呼び出すゲート端末側のアダプタです。
// gRPC のステータスをドメインのエラーに戻すため、端末側のセッションはサーバー内と同じ判定ができます。
package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ogurasousui/site-access/internal/adapters/grpc/wire"
	"github.com/ogurasousui/site-access/internal/core/access"
	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/identity"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// AccessClient は access.UseCase を gRPC 越しに提供します。
type AccessClient struct {
	rpc   *wire.AccessClient
	token string
}

var _ access.UseCase = (*AccessClient)(nil)

// New は AccessClient を生成します。token が空でなければベアラートークンとして送信します。
func New(cc grpc.ClientConnInterface, token string) *AccessClient {
	return &AccessClient{rpc: wire.NewAccessClient(cc), token: strings.TrimSpace(token)}
}

// ScanIdentifier は識別子を従業員の表示情報に解決します。
func (c *AccessClient) ScanIdentifier(ctx context.Context, in identity.ResolveInput) (*identity.EmployeeView, error) {
	req, err := wire.ScanRequest(in)
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.Invoke(c.outgoing(ctx), wire.MethodScanIdentifier, req)
	if err != nil {
		return nil, fromStatusError(err)
	}
	return wire.DecodeEmployeeView(resp)
}

// RecordDecision は判定を記録します。オペレーターはトークンの主体としてサーバーが決定します。
func (c *AccessClient) RecordDecision(ctx context.Context, in admission.DecisionInput) (*ledger.Activity, error) {
	req, err := wire.DecisionRequest(in)
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.Invoke(c.outgoing(ctx), wire.MethodRecordDecision, req)
	if err != nil {
		return nil, fromStatusError(err)
	}
	return wire.DecodeActivity(resp)
}

// ListRecentActivity は直近の判定を新しい順に返します。
func (c *AccessClient) ListRecentActivity(ctx context.Context, filter ledger.Filter) ([]*ledger.Activity, error) {
	req, err := wire.ListRequest(filter)
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.Invoke(c.outgoing(ctx), wire.MethodListRecentActivity, req)
	if err != nil {
		return nil, fromStatusError(err)
	}
	return wire.DecodeActivities(resp)
}

// BulkCloseStaleEntries は滞留入場を一括で退場させます。operatorID は無視され、トークンの主体が記録されます。
func (c *AccessClient) BulkCloseStaleEntries(ctx context.Context, _ *string) (*ledger.BulkCloseResult, error) {
	resp, err := c.rpc.Invoke(c.outgoing(ctx), wire.MethodBulkCloseStaleEntries, &structpb.Struct{})
	if err != nil {
		return nil, fromStatusError(err)
	}
	return wire.DecodeBulkClose(resp), nil
}

// CurrentOccupancy は業者の在場人数と上限を返します。
func (c *AccessClient) CurrentOccupancy(ctx context.Context, vendorID string) (*access.OccupancyView, error) {
	req, err := wire.OccupancyRequest(vendorID)
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.Invoke(c.outgoing(ctx), wire.MethodCurrentOccupancy, req)
	if err != nil {
		return nil, fromStatusError(err)
	}
	return wire.DecodeOccupancy(resp), nil
}

func (c *AccessClient) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// fromStatusError は ErrorInfo を手がかりにドメインのエラーへ戻します。該当しなければ元のエラーを返します。
func fromStatusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	info := errorInfo(st)
	switch st.Code() {
	case codes.FailedPrecondition:
		if info != nil {
			denied := &admission.DeniedError{Reason: admission.Reason(info.GetReason())}
			denied.Cap, _ = strconv.Atoi(info.GetMetadata()[wire.MetadataCap])
			denied.Occupancy, _ = strconv.Atoi(info.GetMetadata()[wire.MetadataOccupancy])
			return denied
		}
	case codes.NotFound:
		switch info.GetReason() {
		case wire.ReasonEmployeeNotFound:
			return directory.ErrEmployeeNotFound
		case wire.ReasonGateNotFound:
			return directory.ErrGateNotFound
		case wire.ReasonVendorNotFound:
			return directory.ErrVendorNotFound
		}
	case codes.Unavailable, codes.DeadlineExceeded:
		op := "rpc"
		if info != nil && info.GetMetadata()[wire.MetadataOp] != "" {
			op = info.GetMetadata()[wire.MetadataOp]
		}
		return &admission.StorageError{Op: op, Err: fmt.Errorf("%s: %s", st.Code(), st.Message())}
	}
	return err
}

func errorInfo(st *status.Status) *errdetails.ErrorInfo {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == wire.ErrorDomain {
			return info
		}
	}
	return nil
}

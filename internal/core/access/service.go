// Package access はゲート端末と管理画面へ公開する入退場ユースケースをまとめます。
package access

import (
	"context"
	"strings"

	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/identity"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"github.com/ogurasousui/site-access/internal/core/occupancy"
)

// OccupancyView は業者の在場状況です。
type OccupancyView struct {
	VendorID       string
	Occupancy      int
	AllowedInCount int
}

// SweepObserver は一括退場で追記した件数を受け取ります。
type SweepObserver interface {
	ObserveBulkClose(count int)
}

type noopSweepObserver struct{}

func (noopSweepObserver) ObserveBulkClose(int) {}

// UseCase は入退場の公開インターフェースです。
type UseCase interface {
	ScanIdentifier(ctx context.Context, in identity.ResolveInput) (*identity.EmployeeView, error)
	RecordDecision(ctx context.Context, in admission.DecisionInput) (*ledger.Activity, error)
	ListRecentActivity(ctx context.Context, filter ledger.Filter) ([]*ledger.Activity, error)
	BulkCloseStaleEntries(ctx context.Context, operatorID *string) (*ledger.BulkCloseResult, error)
	CurrentOccupancy(ctx context.Context, vendorID string) (*OccupancyView, error)
}

// Service は各コンポーネントを束ねて UseCase を提供します。
type Service struct {
	resolver  *identity.Resolver
	admission admission.UseCase
	ledger    ledger.UseCase
	occupancy *occupancy.Calculator
	directory directory.Repository
	sweeps    SweepObserver
}

// NewService は Service を生成します。sweeps は nil でも構いません。
func NewService(
	resolver *identity.Resolver,
	decisions admission.UseCase,
	activities ledger.UseCase,
	calculator *occupancy.Calculator,
	dir directory.Repository,
	sweeps SweepObserver,
) *Service {
	if sweeps == nil {
		sweeps = noopSweepObserver{}
	}
	return &Service{
		resolver:  resolver,
		admission: decisions,
		ledger:    activities,
		occupancy: calculator,
		directory: dir,
		sweeps:    sweeps,
	}
}

// ScanIdentifier はスキャンされた識別子を従業員の表示情報に解決します。
func (s *Service) ScanIdentifier(ctx context.Context, in identity.ResolveInput) (*identity.EmployeeView, error) {
	return s.resolver.Resolve(ctx, in)
}

// RecordDecision はオペレーターの判定を記録します。
func (s *Service) RecordDecision(ctx context.Context, in admission.DecisionInput) (*ledger.Activity, error) {
	return s.admission.Decide(ctx, in)
}

// ListRecentActivity は直近の判定を新しい順に返します。
func (s *Service) ListRecentActivity(ctx context.Context, filter ledger.Filter) ([]*ledger.Activity, error) {
	return s.ledger.RecentGlobal(ctx, filter)
}

// BulkCloseStaleEntries は前日以前の滞留入場に補償 EXIT を追記します。
func (s *Service) BulkCloseStaleEntries(ctx context.Context, operatorID *string) (*ledger.BulkCloseResult, error) {
	result, err := s.ledger.BulkCloseStaleEntries(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	s.sweeps.ObserveBulkClose(result.Count)
	return result, nil
}

// CurrentOccupancy は業者の在場人数と上限を返します。
func (s *Service) CurrentOccupancy(ctx context.Context, vendorID string) (*OccupancyView, error) {
	count, err := s.occupancy.CurrentOccupancy(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	vendor, err := s.directory.FindVendorByID(ctx, strings.TrimSpace(vendorID))
	if err != nil {
		return nil, err
	}
	return &OccupancyView{VendorID: vendor.ID, Occupancy: count, AllowedInCount: vendor.AllowedInCount}, nil
}

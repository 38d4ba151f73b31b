// Package identity はスキャンされた識別子を従業員と有効な権限に解決します。
package identity

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/ledger"
)

// Advisory はオペレーターの判断材料として提示する注意事項です。入場を機械的に拒否するものではありません。
type Advisory string

const (
	AdvisoryEmployeeNotActive Advisory = "employee_not_active"
	AdvisoryDateNotAllowed    Advisory = "date_not_allowed"
	AdvisoryGateNotAssigned   Advisory = "gate_not_assigned"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// ActivityReader は従業員の直近記録を新しい順に返します。
type ActivityReader interface {
	RecentByEmployee(ctx context.Context, employeeID string, limit int) ([]*ledger.Activity, error)
}

// ResolveInput は識別子解決の入力です。GateID はオペレーターが選択中のゲートで、任意です。
type ResolveInput struct {
	Identifier string
	GateID     string
}

// EmployeeView はオペレーターに提示する従業員の状態です。
type EmployeeView struct {
	Employee         *directory.Employee
	Vendor           *directory.Vendor
	EffectiveGateIDs []string
	EffectiveZoneIDs []string
	RecentActivities []*ledger.Activity
	LastActivity     *ledger.Activity
	OnSite           bool
	Advisories       []Advisory
}

// Resolver は識別子の解決を提供します。
type Resolver struct {
	directory  directory.Repository
	activities ActivityReader
	clock      Clock
	tx         TransactionManager
	loc        *time.Location
}

// NewResolver は Resolver を生成します。loc は allowedDates を評価するサイトのタイムゾーンです。
func NewResolver(dir directory.Repository, activities ActivityReader, clock Clock, tx TransactionManager, loc *time.Location) *Resolver {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{directory: dir, activities: activities, clock: clock, tx: tx, loc: loc}
}

// Resolve は識別子に一致する有効な従業員を検索し、有効なゲート・区画と直近記録を添えて返します。
// 従業員の状態は検証しません。停止中の従業員も表示でき、入場可否は入場判定が決めます。
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (*EmployeeView, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		return nil, ErrInvalidIdentifier
	}
	gateID := strings.TrimSpace(in.GateID)

	var view *EmployeeView
	if err := r.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		emp, err := r.directory.FindEmployeeByIdentifier(txCtx, identifier)
		if err != nil {
			return err
		}

		vendor, err := r.directory.FindVendorByID(txCtx, emp.VendorID)
		if err != nil && !errors.Is(err, directory.ErrVendorNotFound) {
			return err
		}

		recent, err := r.activities.RecentByEmployee(txCtx, emp.ID, ledger.RecentContextSize)
		if err != nil {
			return err
		}

		view = &EmployeeView{
			Employee:         emp,
			Vendor:           vendor,
			EffectiveGateIDs: directory.EffectiveGateIDs(emp, vendor),
			EffectiveZoneIDs: directory.EffectiveZoneIDs(emp, vendor),
			RecentActivities: recent,
		}
		if len(recent) > 0 {
			view.LastActivity = recent[0]
		}
		view.OnSite = ledger.IsOnSite(view.LastActivity)
		view.Advisories = r.advisories(view, gateID)
		return nil
	}); err != nil {
		return nil, err
	}

	return view, nil
}

func (r *Resolver) advisories(view *EmployeeView, gateID string) []Advisory {
	var out []Advisory
	if view.Employee.Status != directory.StatusActive {
		out = append(out, AdvisoryEmployeeNotActive)
	}
	if !view.Employee.AllowedOn(r.clock.Now(), r.loc) {
		out = append(out, AdvisoryDateNotAllowed)
	}
	if gateID != "" && len(view.EffectiveGateIDs) > 0 && !slices.Contains(view.EffectiveGateIDs, gateID) {
		out = append(out, AdvisoryGateNotAssigned)
	}
	return out
}

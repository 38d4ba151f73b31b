// Package admission は入退場の判定を台帳へ記録します。
// 入場は業者の同時在場上限を検査し、検査から追記までを業者単位で直列化します。
package admission

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/ledger"
)

// DefaultTimeout は判定 1 件あたりの既定の制限時間です。
const DefaultTimeout = 3 * time.Second

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
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// ActivityStore は判定の追記と最新記録の参照を提供します。
type ActivityStore interface {
	Append(ctx context.Context, activity *ledger.Activity) (*ledger.Activity, error)
	Latest(ctx context.Context, employeeID string) (*ledger.Activity, error)
}

// OccupancyReader は業者の現在の在場人数を返します。
type OccupancyReader interface {
	CurrentOccupancy(ctx context.Context, vendorID string) (int, error)
}

// VendorLocker はトランザクション内で業者単位のロックを取得します。ロックはトランザクション終了まで保持されます。
type VendorLocker interface {
	LockVendor(ctx context.Context, vendorID string) error
}

type noopLocker struct{}

func (noopLocker) LockVendor(context.Context, string) error {
	return nil
}

// Outcome は判定 1 件の結果の分類です。
type Outcome string

const (
	OutcomeRecorded Outcome = "recorded"
	OutcomeDenied   Outcome = "denied"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Observer は判定結果を受け取ります。メトリクス収集に利用します。
type Observer interface {
	ObserveDecision(typ ledger.Type, outcome Outcome, reason Reason, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveDecision(ledger.Type, Outcome, Reason, time.Duration) {}

// DecisionInput は判定記録の入力です。
type DecisionInput struct {
	EmployeeID string
	GateID     string
	Type       ledger.Type
	// OperatorID は認証済みオペレーターです。nil の場合は誰にも帰属しない記録になります。
	OperatorID *string
	// DenialReason は Type が DENIED の場合のみ記録されます。
	DenialReason string
}

// Config は Service の動作設定です。ゼロ値は既定値で補われます。
type Config struct {
	Clock    Clock
	Observer Observer
	Timeout  time.Duration
	// EnforceAllowedDates が true の場合、許可日以外の入場を拒否します。false なら識別子解決時の注意事項に留まります。
	EnforceAllowedDates bool
	Location            *time.Location
}

// UseCase は入場判定ユースケースの公開インターフェースです。
type UseCase interface {
	Decide(ctx context.Context, in DecisionInput) (*ledger.Activity, error)
}

// Service は入場判定を提供します。
type Service struct {
	directory  directory.Repository
	activities ActivityStore
	occupancy  OccupancyReader
	locker     VendorLocker
	tx         TransactionManager
	vendors    *KeyedMutex
	clock      Clock
	observer   Observer
	timeout    time.Duration
	enforce    bool
	loc        *time.Location
}

// NewService は Service を生成します。
func NewService(dir directory.Repository, activities ActivityStore, occupancy OccupancyReader, locker VendorLocker, tx TransactionManager, cfg Config) *Service {
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if locker == nil {
		locker = noopLocker{}
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		directory:  dir,
		activities: activities,
		occupancy:  occupancy,
		locker:     locker,
		tx:         tx,
		vendors:    NewKeyedMutex(),
		clock:      cfg.Clock,
		observer:   cfg.Observer,
		timeout:    cfg.Timeout,
		enforce:    cfg.EnforceAllowedDates,
		loc:        cfg.Location,
	}
}

// Decide は判定を 1 件記録します。
// EXIT と DENIED は無条件に追記します。ENTRY は従業員の状態と業者の同時在場上限を検査し、
// 上限に達していれば *DeniedError を返して何も記録しません。
// 記録に失敗した場合やタイムアウトした場合は *StorageError を返し、入場は許可しません。
func (s *Service) Decide(ctx context.Context, in DecisionInput) (*ledger.Activity, error) {
	start := time.Now()
	activity, err := s.decide(ctx, in)
	s.observer.ObserveDecision(in.Type, outcomeOf(err), reasonOf(err), time.Since(start))
	return activity, err
}

func (s *Service) decide(ctx context.Context, in DecisionInput) (*ledger.Activity, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	emp, err := s.directory.FindEmployeeByID(ctx, in.EmployeeID)
	if err != nil {
		return nil, classify("find employee", err)
	}
	if _, err := s.directory.FindGateByID(ctx, in.GateID); err != nil {
		return nil, classify("find gate", err)
	}

	if in.Type != ledger.TypeEntry {
		return s.append(ctx, in)
	}

	now := s.clock.Now()
	if emp.Status != directory.StatusActive {
		return nil, &DeniedError{Reason: ReasonEmployeeNotActive}
	}
	if s.enforce && !emp.AllowedOn(now, s.loc) {
		return nil, &DeniedError{Reason: ReasonDateNotAllowed}
	}

	vendor, err := s.directory.FindVendorByID(ctx, emp.VendorID)
	if err != nil {
		return nil, classify("find vendor", err)
	}
	if !vendor.HasOccupancyCap() || emp.BypassConcurrentLimit {
		return s.append(ctx, in)
	}

	return s.admitCapped(ctx, in, vendor)
}

// admitCapped は在場人数の検査から追記までを業者単位で直列化して実行します。
// プロセス内ではキー付きロックで、複数プロセス間ではトランザクション内のロックで直列化します。
func (s *Service) admitCapped(ctx context.Context, in DecisionInput, vendor *directory.Vendor) (*ledger.Activity, error) {
	unlock, err := s.vendors.Lock(ctx, vendor.ID)
	if err != nil {
		return nil, &StorageError{Op: "lock vendor", Err: err}
	}
	defer unlock()

	var appended *ledger.Activity
	err = s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.locker.LockVendor(txCtx, vendor.ID); err != nil {
			return &StorageError{Op: "lock vendor", Err: err}
		}

		latest, err := s.activities.Latest(txCtx, in.EmployeeID)
		if err != nil && !errors.Is(err, ledger.ErrNoActivity) {
			return &StorageError{Op: "latest activity", Err: err}
		}

		// 在場中の従業員の再入場は人数を増やさない
		if !ledger.IsOnSite(latest) {
			occupancy, err := s.occupancy.CurrentOccupancy(txCtx, vendor.ID)
			if err != nil {
				return &StorageError{Op: "count occupancy", Err: err}
			}
			if occupancy >= vendor.AllowedInCount {
				return &DeniedError{Reason: ReasonCapacityReached, Cap: vendor.AllowedInCount, Occupancy: occupancy}
			}
		}

		appended, err = s.activities.Append(txCtx, s.activity(in))
		if err != nil {
			return classify("append activity", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify("commit", err)
	}
	return appended, nil
}

func (s *Service) append(ctx context.Context, in DecisionInput) (*ledger.Activity, error) {
	var appended *ledger.Activity
	err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		a, err := s.activities.Append(txCtx, s.activity(in))
		if err != nil {
			return err
		}
		appended = a
		return nil
	})
	if err != nil {
		return nil, classify("append activity", err)
	}
	return appended, nil
}

func (s *Service) activity(in DecisionInput) *ledger.Activity {
	a := &ledger.Activity{
		EmployeeID: in.EmployeeID,
		GateID:     in.GateID,
		ScannerID:  in.OperatorID,
		Type:       in.Type,
		Status:     ledger.StatusGranted,
		ScannedAt:  s.clock.Now(),
	}
	if in.Type == ledger.TypeDenied {
		a.Status = ledger.StatusDenied
		if in.DenialReason != "" {
			reason := in.DenialReason
			a.DenialReason = &reason
		}
	}
	return a
}

func normalizeInput(in DecisionInput) (DecisionInput, error) {
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	if in.EmployeeID == "" {
		return in, ErrInvalidEmployeeID
	}
	in.GateID = strings.TrimSpace(in.GateID)
	if in.GateID == "" {
		return in, ErrInvalidGateID
	}
	if !in.Type.IsValid() {
		return in, ErrInvalidType
	}
	in.DenialReason = strings.TrimSpace(in.DenialReason)
	if in.OperatorID != nil {
		op := strings.TrimSpace(*in.OperatorID)
		if op == "" {
			in.OperatorID = nil
		} else {
			in.OperatorID = &op
		}
	}
	return in, nil
}

// classify は名簿の不在と拒否をそのまま返し、それ以外を StorageError に包みます。
func classify(op string, err error) error {
	var storageErr *StorageError
	switch {
	case errors.As(err, &storageErr):
		return err
	case errors.Is(err, ErrAdmissionDenied),
		errors.Is(err, directory.ErrEmployeeNotFound),
		errors.Is(err, directory.ErrGateNotFound),
		errors.Is(err, directory.ErrVendorNotFound):
		return err
	default:
		return &StorageError{Op: op, Err: err}
	}
}

func outcomeOf(err error) Outcome {
	var storageErr *StorageError
	switch {
	case err == nil:
		return OutcomeRecorded
	case errors.Is(err, ErrAdmissionDenied):
		return OutcomeDenied
	case errors.As(err, &storageErr):
		return OutcomeFailed
	default:
		return OutcomeRejected
	}
}

func reasonOf(err error) Reason {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason
	}
	return ""
}

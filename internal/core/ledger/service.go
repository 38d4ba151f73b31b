package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
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
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

const (
	// DefaultListLimit は件数指定がない場合の取得件数です。
	DefaultListLimit = 50
	// MaxListLimit は一度に取得できる最大件数です。
	MaxListLimit = 200
	// RecentContextSize はスキャン時にオペレーターへ提示する直近記録の件数です。
	RecentContextSize = 3
)

// Service は台帳の参照と補償レコードの追記をまとめます。
type Service struct {
	repo  Repository
	clock Clock
	tx    TransactionManager
	loc   *time.Location
}

// UseCase は台帳ユースケースの公開インターフェースです。
type UseCase interface {
	RecentForScanner(ctx context.Context, scannerID string, filter Filter) ([]*Activity, error)
	RecentGlobal(ctx context.Context, filter Filter) ([]*Activity, error)
	ByEmployee(ctx context.Context, employeeID string, limit int) ([]*Activity, error)
	BulkCloseStaleEntries(ctx context.Context, operatorID *string) (*BulkCloseResult, error)
}

// NewService は Service を生成します。loc は「当日」の境界を決めるサイトのタイムゾーンです。
func NewService(repo Repository, clock Clock, tx TransactionManager, loc *time.Location) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, clock: clock, tx: tx, loc: loc}
}

// RecentForScanner は指定オペレーターが記録した直近の判定を返します。
func (s *Service) RecentForScanner(ctx context.Context, scannerID string, filter Filter) ([]*Activity, error) {
	trimmed := strings.TrimSpace(scannerID)
	if trimmed == "" {
		return nil, ErrInvalidScannerID
	}
	filter.ScannerID = trimmed
	return s.RecentGlobal(ctx, filter)
}

// RecentGlobal は全ゲートの直近の判定を新しい順に返します。
func (s *Service) RecentGlobal(ctx context.Context, filter Filter) ([]*Activity, error) {
	normalized, err := NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	var result []*Activity
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.List(txCtx, normalized)
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// ByEmployee は従業員の記録を新しい順に返します。
func (s *Service) ByEmployee(ctx context.Context, employeeID string, limit int) ([]*Activity, error) {
	id := strings.TrimSpace(employeeID)
	if id == "" {
		return nil, ErrInvalidEmployeeID
	}

	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	var result []*Activity
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.RecentByEmployee(txCtx, id, limit)
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// BulkCloseStaleEntries は前日以前の ENTRY/GRANTED が最新のまま残っている従業員全員に
// 補償 EXIT/GRANTED を追記します。2 回続けて実行しても 2 回目は 0 件です。
func (s *Service) BulkCloseStaleEntries(ctx context.Context, operatorID *string) (*BulkCloseResult, error) {
	now := s.clock.Now()
	in := CloseStaleInput{
		Before:    StartOfDay(now, s.loc),
		At:        now,
		ScannerID: normalizeOptionalID(operatorID),
	}

	var closed int
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockSweep(txCtx); err != nil {
			return err
		}
		n, err := s.repo.CloseStaleEntries(txCtx, in)
		if err != nil {
			return fmt.Errorf("ledger: close stale entries: %w", err)
		}
		closed = n
		return nil
	}); err != nil {
		return nil, err
	}

	return &BulkCloseResult{Count: closed}, nil
}

// StartOfDay は t を loc で見た暦日の 0 時を返します。
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// NormalizeFilter は一覧取得条件を検証し、既定値を補います。
func NormalizeFilter(filter Filter) (Filter, error) {
	limit, err := normalizeLimit(filter.Limit)
	if err != nil {
		return Filter{}, err
	}
	filter.Limit = limit
	filter.GateID = strings.TrimSpace(filter.GateID)
	filter.ScannerID = strings.TrimSpace(filter.ScannerID)

	if filter.Status != nil && !filter.Status.IsValid() {
		return Filter{}, ErrInvalidStatus
	}
	if filter.Type != nil && !filter.Type.IsValid() {
		return Filter{}, ErrInvalidType
	}

	return filter, nil
}

func normalizeLimit(limit int) (int, error) {
	if limit <= 0 {
		return DefaultListLimit, nil
	}
	if limit > MaxListLimit {
		return 0, ErrInvalidLimit
	}
	return limit, nil
}

func normalizeOptionalID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

package ledger

import "time"

// Type はスキャン判定の種類です。
type Type string

const (
	TypeEntry  Type = "ENTRY"
	TypeExit   Type = "EXIT"
	TypeDenied Type = "DENIED"
)

// IsValid は既知の種類かどうかを返します。
func (t Type) IsValid() bool {
	switch t {
	case TypeEntry, TypeExit, TypeDenied:
		return true
	default:
		return false
	}
}

// Status は判定結果です。
type Status string

const (
	StatusGranted Status = "GRANTED"
	StatusDenied  Status = "DENIED"
)

// IsValid は既知の結果かどうかを返します。
func (s Status) IsValid() bool {
	return s == StatusGranted || s == StatusDenied
}

// Activity は台帳に追記された 1 件の判定記録です。作成後に変更・削除されることはありません。
type Activity struct {
	ID         string
	EmployeeID string
	GateID     string
	// ScannerID は記録したオペレーターです。未認証の呼び出しでは nil になります。
	ScannerID    *string
	Type         Type
	Status       Status
	DenialReason *string
	ScannedAt    time.Time
}

// IsOnSite は最新記録 latest から在場状態を導出します。記録がなければ不在です。
// 在場状態はどこにも保存せず、常にこの関数で台帳から導出します。
func IsOnSite(latest *Activity) bool {
	return latest != nil && latest.Type == TypeEntry && latest.Status == StatusGranted
}

// Filter は直近記録の一覧取得条件です。ゼロ値のフィールドは条件に含めません。
type Filter struct {
	GateID    string
	ScannerID string
	Status    *Status
	Type      *Type
	Since     *time.Time
	Limit     int
}

// CloseStaleInput は滞留入場の一括退場に使う条件です。
type CloseStaleInput struct {
	// Before より前に記録された ENTRY/GRANTED が最新記録である従業員が対象です。
	Before time.Time
	// At は補償 EXIT の記録時刻です。
	At        time.Time
	ScannerID *string
}

// BulkCloseResult は一括退場の結果です。
type BulkCloseResult struct {
	Count int
}

package admission

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEmployeeID は従業員 ID が空の場合に返却されます。
	ErrInvalidEmployeeID = errors.New("admission: employee id is required")
	// ErrInvalidGateID はゲートが選択されていない場合に返却されます。
	ErrInvalidGateID = errors.New("admission: gate id is required")
	// ErrInvalidType は判定種類が不正な場合に返却されます。
	ErrInvalidType = errors.New("admission: invalid decision type")
	// ErrAdmissionDenied は入場が拒否された場合に errors.Is で一致します。具体的な内容は DeniedError を参照します。
	ErrAdmissionDenied = errors.New("admission: denied")
)

// Reason は入場拒否の理由です。
type Reason string

const (
	ReasonCapacityReached   Reason = "capacity_reached"
	ReasonEmployeeNotActive Reason = "employee_not_active"
	ReasonDateNotAllowed    Reason = "date_not_allowed"
)

// DeniedError は入場拒否を表します。台帳には何も記録されていません。
// 上限到達は想定された頻出の結果であり、システム障害ではありません。
type DeniedError struct {
	Reason Reason
	// Cap は業者の同時在場上限です。ReasonCapacityReached の場合のみ設定されます。
	Cap       int
	Occupancy int
}

func (e *DeniedError) Error() string {
	if e.Reason == ReasonCapacityReached {
		return fmt.Sprintf("admission: denied: capacity reached (cap=%d, occupancy=%d)", e.Cap, e.Occupancy)
	}
	return fmt.Sprintf("admission: denied: %s", e.Reason)
}

// Is は ErrAdmissionDenied との一致を判定します。
func (e *DeniedError) Is(target error) bool {
	return target == ErrAdmissionDenied
}

// StorageError は台帳の読み書きに失敗したことを表します。タイムアウトも含みます。
// この場合、記録の成否は保証されず入場は許可されていません。
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("admission: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

package ledger

import "errors"

var (
	// ErrNoActivity は従業員に記録が 1 件もない場合に返却されます。
	ErrNoActivity = errors.New("ledger: no activity")
	// ErrInvalidEmployeeID は従業員 ID が不正な場合に返却されます。
	ErrInvalidEmployeeID = errors.New("ledger: invalid employee id")
	// ErrInvalidScannerID はオペレーター ID が不正な場合に返却されます。
	ErrInvalidScannerID = errors.New("ledger: invalid scanner id")
	// ErrInvalidType は種類が不正な場合に返却されます。
	ErrInvalidType = errors.New("ledger: invalid type")
	// ErrInvalidStatus は結果が不正な場合に返却されます。
	ErrInvalidStatus = errors.New("ledger: invalid status")
	// ErrInvalidLimit は取得件数が不正な場合に返却されます。
	ErrInvalidLimit = errors.New("ledger: invalid limit")
)

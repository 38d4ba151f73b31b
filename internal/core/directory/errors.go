package directory

import "errors"

var (
	// ErrEmployeeNotFound は有効な従業員が存在しない場合に返却されます。
	ErrEmployeeNotFound = errors.New("directory: employee not found")
	// ErrVendorNotFound は業者が存在しない場合に返却されます。
	ErrVendorNotFound = errors.New("directory: vendor not found")
	// ErrGateNotFound はゲートが存在しない場合に返却されます。
	ErrGateNotFound = errors.New("directory: gate not found")
)

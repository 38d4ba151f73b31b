package identity

import "errors"

// ErrInvalidIdentifier は識別子が空の場合に返却されます。
var ErrInvalidIdentifier = errors.New("identity: identifier is required")

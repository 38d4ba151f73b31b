package directory

import "context"

// Repository は外部管理される名簿の読み取り専用アクセスです。
// 論理削除済みの従業員はいずれの検索でも返しません。
type Repository interface {
	FindEmployeeByIdentifier(ctx context.Context, identifier string) (*Employee, error)
	FindEmployeeByID(ctx context.Context, id string) (*Employee, error)
	FindVendorByID(ctx context.Context, id string) (*Vendor, error)
	FindGateByID(ctx context.Context, id string) (*Gate, error)
}

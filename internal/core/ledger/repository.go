package ledger

import "context"

// Repository は追記専用台帳の永続化の抽象です。更新・削除の操作は存在しません。
type Repository interface {
	Append(ctx context.Context, activity *Activity) (*Activity, error)
	// Latest は従業員の最新記録を返します。記録がなければ ErrNoActivity を返します。
	Latest(ctx context.Context, employeeID string) (*Activity, error)
	// RecentByEmployee は従業員の記録を新しい順に最大 limit 件返します。
	RecentByEmployee(ctx context.Context, employeeID string, limit int) ([]*Activity, error)
	List(ctx context.Context, filter Filter) ([]*Activity, error)
	// CloseStaleEntries は条件に合う従業員ごとに補償 EXIT を追記し、その件数を返します。
	CloseStaleEntries(ctx context.Context, in CloseStaleInput) (int, error)
	// LockSweep は一括退場を他の実行と直列化します。トランザクション内で呼び出します。
	LockSweep(ctx context.Context) error
}

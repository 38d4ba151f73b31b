package postgres

import (
	"context"
	"fmt"
)

// LockNamespace は advisory lock の第一キーです。用途ごとに衝突しない値を割り当てます。
type LockNamespace int32

const (
	// LockNamespaceVendorAdmission は業者単位の入場判定を直列化します。
	LockNamespaceVendorAdmission LockNamespace = 41001
	// LockNamespaceLedgerSweep は滞留入場の一括退場処理を直列化します。
	LockNamespaceLedgerSweep LockNamespace = 41002
)

// AdvisoryXactLock は現在のトランザクションが終了するまで保持される advisory lock を取得します。
// key は hashtext で 32bit に畳み込まれるため、別キーが同じロックを共有することがあります。
func AdvisoryXactLock(ctx context.Context, ns LockNamespace, key string) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return fmt.Errorf("advisory lock %d/%s: %w", ns, key, ErrNoTransaction)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, int32(ns), key); err != nil {
		return fmt.Errorf("postgres: advisory lock %d/%s: %w", ns, key, err)
	}
	return nil
}

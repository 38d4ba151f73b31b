// Package occupancy は業者ごとの在場人数を台帳から算出します。
package occupancy

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidVendorID は業者 ID が空の場合に返却されます。
var ErrInvalidVendorID = errors.New("occupancy: vendor id is required")

// Counter は業者の在場人数を数えます。
// 論理削除済みの従業員と上限対象外 (bypass) の従業員は数えず、
// 最新記録が ENTRY/GRANTED の従業員のみを数えます。
// コンテキストにトランザクションがあればその中で読み取ります。
type Counter interface {
	CountOnSite(ctx context.Context, vendorID string) (int, error)
}

// Calculator は在場人数の算出を提供します。
type Calculator struct {
	counter Counter
}

// NewCalculator は Calculator を生成します。
func NewCalculator(counter Counter) *Calculator {
	return &Calculator{counter: counter}
}

// CurrentOccupancy は呼び出し時点の台帳に基づく業者の在場人数を返します。副作用はありません。
func (c *Calculator) CurrentOccupancy(ctx context.Context, vendorID string) (int, error) {
	id := strings.TrimSpace(vendorID)
	if id == "" {
		return 0, ErrInvalidVendorID
	}
	return c.counter.CountOnSite(ctx, id)
}

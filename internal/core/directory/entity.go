package directory

import (
	"slices"
	"time"
)

// Status は従業員の登録状態を表します。
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// IsValid は既知の状態かどうかを返します。
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended:
		return true
	default:
		return false
	}
}

// Employee は業者に所属する入構者です。登録・編集は外部の管理画面が担います。
// 同じ Identifier の有効な行 (DeletedAt == nil) は常に高々 1 行です。
type Employee struct {
	ID                    string
	Identifier            string
	Version               int
	VendorID              string
	Name                  string
	Status                Status
	GateIDs               []string
	ZoneIDs               []string
	BypassConcurrentLimit bool
	AllowedDates          []time.Time
	DeletedAt             *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsDeleted は論理削除済みかどうかを返します。
func (e *Employee) IsDeleted() bool {
	return e.DeletedAt != nil
}

// AllowedOn は day (loc 上の暦日) に入構が許可されているかを返します。
// AllowedDates が空の場合は全日許可です。
func (e *Employee) AllowedOn(day time.Time, loc *time.Location) bool {
	if len(e.AllowedDates) == 0 {
		return true
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()
	for _, allowed := range e.AllowedDates {
		ay, am, ad := allowed.Date()
		if ay == y && am == m && ad == d {
			return true
		}
	}
	return false
}

// Vendor は入構者を派遣する業者です。
type Vendor struct {
	ID                string
	Name              string
	AllowedStaffCount int
	// AllowedInCount は同時在場人数の上限です。0 は無制限を表します。
	AllowedInCount int
	GateIDs        []string
	ZoneIDs        []string
}

// HasOccupancyCap は同時在場人数の上限が設定されているかを返します。
func (v *Vendor) HasOccupancyCap() bool {
	return v.AllowedInCount > 0
}

// Gate は入退場ゲートです。
type Gate struct {
	ID   string
	Name string
}

// Zone は構内の区画です。
type Zone struct {
	ID   string
	Name string
}

// EffectiveGateIDs は従業員個別の割り当てがあればそれを、なければ業者の割り当てを返します。
func EffectiveGateIDs(e *Employee, v *Vendor) []string {
	if len(e.GateIDs) > 0 || v == nil {
		return slices.Clone(e.GateIDs)
	}
	return slices.Clone(v.GateIDs)
}

// EffectiveZoneIDs は従業員個別の割り当てがあればそれを、なければ業者の割り当てを返します。
func EffectiveZoneIDs(e *Employee, v *Vendor) []string {
	if len(e.ZoneIDs) > 0 || v == nil {
		return slices.Clone(e.ZoneIDs)
	}
	return slices.Clone(v.ZoneIDs)
}

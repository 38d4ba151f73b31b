// Package memory は名簿と台帳をプロセス内に保持するリポジトリ実装です。
// 単一プロセスでのデモ運用とテストに利用し、PostgreSQL 実装と同じ意味論を持ちます。
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/ledger"
)

// Store は directory.Repository と ledger.Repository を同時に満たします。
type Store struct {
	mu         sync.RWMutex
	employees  map[string]*directory.Employee
	vendors    map[string]*directory.Vendor
	gates      map[string]*directory.Gate
	zones      map[string]*directory.Zone
	activities []*ledger.Activity
	newID      func() string
}

// NewStore は空の Store を生成します。
func NewStore() *Store {
	return &Store{
		employees: make(map[string]*directory.Employee),
		vendors:   make(map[string]*directory.Vendor),
		gates:     make(map[string]*directory.Gate),
		zones:     make(map[string]*directory.Zone),
		newID:     uuid.NewString,
	}
}

// PutVendor は業者を登録または置換します。
func (s *Store) PutVendor(v directory.Vendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[v.ID] = cloneVendor(&v)
}

// PutGate はゲートを登録または置換します。
func (s *Store) PutGate(g directory.Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := g
	s.gates[g.ID] = &clone
}

// PutZone は区画を登録または置換します。
func (s *Store) PutZone(z directory.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := z
	s.zones[z.ID] = &clone
}

// PutEmployee は従業員を登録または置換します。
// 有効な行の識別子が他の有効な行と重複する場合はエラーを返します。
func (s *Store) PutEmployee(e directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[e.VendorID]; !ok {
		return fmt.Errorf("memory: employee %s: %w", e.ID, directory.ErrVendorNotFound)
	}
	if e.DeletedAt == nil {
		for id, existing := range s.employees {
			if id != e.ID && existing.DeletedAt == nil && existing.Identifier == e.Identifier {
				return fmt.Errorf("memory: identifier %q already active on %s", e.Identifier, id)
			}
		}
	}
	if e.Version == 0 {
		e.Version = 1
	}
	s.employees[e.ID] = cloneEmployee(&e)
	return nil
}

// ReissueEmployee は識別子 identifier の有効な行を論理削除し、版を 1 つ上げた新しい行を作成します。
func (s *Store) ReissueEmployee(identifier, newID string, at time.Time) (*directory.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.activeByIdentifier(identifier)
	if current == nil {
		return nil, directory.ErrEmployeeNotFound
	}

	deletedAt := at
	current.DeletedAt = &deletedAt
	current.UpdatedAt = at

	next := cloneEmployee(current)
	next.ID = newID
	next.Version = current.Version + 1
	next.DeletedAt = nil
	next.CreatedAt = at
	next.UpdatedAt = at
	s.employees[newID] = next

	return cloneEmployee(next), nil
}

// FindEmployeeByIdentifier は有効な従業員を識別子で検索します。
func (s *Store) FindEmployeeByIdentifier(_ context.Context, identifier string) (*directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if emp := s.activeByIdentifier(identifier); emp != nil {
		return cloneEmployee(emp), nil
	}
	return nil, directory.ErrEmployeeNotFound
}

// FindEmployeeByID は有効な従業員を ID で検索します。
func (s *Store) FindEmployeeByID(_ context.Context, id string) (*directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emp, ok := s.employees[id]
	if !ok || emp.DeletedAt != nil {
		return nil, directory.ErrEmployeeNotFound
	}
	return cloneEmployee(emp), nil
}

// FindVendorByID は業者を ID で検索します。
func (s *Store) FindVendorByID(_ context.Context, id string) (*directory.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vendors[id]
	if !ok {
		return nil, directory.ErrVendorNotFound
	}
	return cloneVendor(v), nil
}

// FindGateByID はゲートを ID で検索します。
func (s *Store) FindGateByID(_ context.Context, id string) (*directory.Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.gates[id]
	if !ok {
		return nil, directory.ErrGateNotFound
	}
	clone := *g
	return &clone, nil
}

// Append は記録を追記します。ID が空なら採番します。
func (s *Store) Append(_ context.Context, a *ledger.Activity) (*ledger.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[a.EmployeeID]; !ok {
		return nil, directory.ErrEmployeeNotFound
	}
	if _, ok := s.gates[a.GateID]; !ok {
		return nil, directory.ErrGateNotFound
	}

	clone := cloneActivity(a)
	if clone.ID == "" {
		clone.ID = s.newID()
	}
	s.activities = append(s.activities, clone)
	return cloneActivity(clone), nil
}

// Latest は従業員の最新記録を返します。
func (s *Store) Latest(_ context.Context, employeeID string) (*ledger.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latestLocked(employeeID)
	if latest == nil {
		return nil, ledger.ErrNoActivity
	}
	return cloneActivity(latest), nil
}

// RecentByEmployee は従業員の記録を新しい順に最大 limit 件返します。
func (s *Store) RecentByEmployee(_ context.Context, employeeID string, limit int) ([]*ledger.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Activity, 0, limit)
	for _, a := range s.newestFirstLocked() {
		if a.EmployeeID != employeeID {
			continue
		}
		out = append(out, cloneActivity(a))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// List は条件に合う記録を新しい順に返します。
func (s *Store) List(_ context.Context, filter ledger.Filter) ([]*ledger.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Activity, 0, filter.Limit)
	for _, a := range s.newestFirstLocked() {
		if !matches(a, filter) {
			continue
		}
		out = append(out, cloneActivity(a))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// CloseStaleEntries は滞留入場に補償 EXIT を追記します。判定と追記は同じロック内で行います。
func (s *Store) CloseStaleEntries(_ context.Context, in ledger.CloseStaleInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	employeeIDs := make([]string, 0, len(s.employees))
	seen := make(map[string]struct{})
	for _, a := range s.activities {
		if _, ok := seen[a.EmployeeID]; ok {
			continue
		}
		seen[a.EmployeeID] = struct{}{}
		employeeIDs = append(employeeIDs, a.EmployeeID)
	}
	sort.Strings(employeeIDs)

	closed := 0
	for _, id := range employeeIDs {
		latest := s.latestLocked(id)
		if !ledger.IsOnSite(latest) || !latest.ScannedAt.Before(in.Before) {
			continue
		}
		s.activities = append(s.activities, &ledger.Activity{
			ID:         s.newID(),
			EmployeeID: id,
			GateID:     latest.GateID,
			ScannerID:  cloneString(in.ScannerID),
			Type:       ledger.TypeExit,
			Status:     ledger.StatusGranted,
			ScannedAt:  in.At,
		})
		closed++
	}
	return closed, nil
}

// LockSweep は何もしません。CloseStaleEntries 自体が Store のロック内で完結します。
func (s *Store) LockSweep(context.Context) error {
	return nil
}

// LockVendor は何もしません。プロセス内の直列化は入場判定サービスが担います。
func (s *Store) LockVendor(context.Context, string) error {
	return nil
}

// CountOnSite は業者の在場人数 (上限対象外の従業員を除く) を返します。
func (s *Store) CountOnSite(_ context.Context, vendorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for id, emp := range s.employees {
		if emp.VendorID != vendorID || emp.DeletedAt != nil || emp.BypassConcurrentLimit {
			continue
		}
		if ledger.IsOnSite(s.latestLocked(id)) {
			count++
		}
	}
	return count, nil
}

// Activities は追記順の全記録のコピーを返します。
func (s *Store) Activities() []*ledger.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, cloneActivity(a))
	}
	return out
}

func (s *Store) activeByIdentifier(identifier string) *directory.Employee {
	for _, emp := range s.employees {
		if emp.DeletedAt == nil && emp.Identifier == identifier {
			return emp
		}
	}
	return nil
}

// latestLocked は scanned_at 降順、同時刻なら追記順の降順で先頭の記録を返します。
func (s *Store) latestLocked(employeeID string) *ledger.Activity {
	var latest *ledger.Activity
	for _, a := range s.activities {
		if a.EmployeeID != employeeID {
			continue
		}
		if latest == nil || !a.ScannedAt.Before(latest.ScannedAt) {
			latest = a
		}
	}
	return latest
}

func (s *Store) newestFirstLocked() []*ledger.Activity {
	ordered := slices.Clone(s.activities)
	slices.Reverse(ordered)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ScannedAt.After(ordered[j].ScannedAt)
	})
	return ordered
}

func matches(a *ledger.Activity, f ledger.Filter) bool {
	if f.GateID != "" && a.GateID != f.GateID {
		return false
	}
	if f.ScannerID != "" && (a.ScannerID == nil || *a.ScannerID != f.ScannerID) {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	if f.Since != nil && a.ScannedAt.Before(*f.Since) {
		return false
	}
	return true
}

func cloneEmployee(e *directory.Employee) *directory.Employee {
	clone := *e
	clone.GateIDs = slices.Clone(e.GateIDs)
	clone.ZoneIDs = slices.Clone(e.ZoneIDs)
	clone.AllowedDates = slices.Clone(e.AllowedDates)
	if e.DeletedAt != nil {
		deleted := *e.DeletedAt
		clone.DeletedAt = &deleted
	}
	return &clone
}

func cloneVendor(v *directory.Vendor) *directory.Vendor {
	clone := *v
	clone.GateIDs = slices.Clone(v.GateIDs)
	clone.ZoneIDs = slices.Clone(v.ZoneIDs)
	return &clone
}

func cloneActivity(a *ledger.Activity) *ledger.Activity {
	clone := *a
	clone.ScannerID = cloneString(a.ScannerID)
	clone.DenialReason = cloneString(a.DenialReason)
	return &clone
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

package memory

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/ledger"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := NewStore()
	s.PutGate(directory.Gate{ID: "gate-1", Name: "North"})
	s.PutVendor(directory.Vendor{ID: "vendor-1", AllowedInCount: 2, GateIDs: []string{"gate-1"}})
	for _, e := range []directory.Employee{
		{ID: "emp-a", Identifier: "A", VendorID: "vendor-1", Status: directory.StatusActive},
		{ID: "emp-b", Identifier: "B", VendorID: "vendor-1", Status: directory.StatusActive},
		{ID: "emp-s", Identifier: "S", VendorID: "vendor-1", Status: directory.StatusActive, BypassConcurrentLimit: true},
	} {
		if err := s.PutEmployee(e); err != nil {
			t.Fatalf("PutEmployee(%s): %v", e.ID, err)
		}
	}
	return s
}

func appendActivity(t *testing.T, s *Store, employeeID string, typ ledger.Type, status ledger.Status, at time.Time) *ledger.Activity {
	t.Helper()

	a, err := s.Append(context.Background(), &ledger.Activity{
		EmployeeID: employeeID,
		GateID:     "gate-1",
		Type:       typ,
		Status:     status,
		ScannedAt:  at,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return a
}

func TestStore_PutEmployeeRejectsDuplicateActiveIdentifier(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	err := s.PutEmployee(directory.Employee{ID: "emp-x", Identifier: "A", VendorID: "vendor-1", Status: directory.StatusActive})
	if err == nil {
		t.Fatal("expected duplicate identifier error")
	}

	err = s.PutEmployee(directory.Employee{ID: "emp-y", Identifier: "Y", VendorID: "missing"})
	if !errors.Is(err, directory.ErrVendorNotFound) {
		t.Fatalf("expected ErrVendorNotFound, got %v", err)
	}
}

func TestStore_ReissueEmployee(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	next, err := s.ReissueEmployee("A", "emp-a2", baseTime)
	if err != nil {
		t.Fatalf("ReissueEmployee: %v", err)
	}
	if next.Version != 2 {
		t.Fatalf("expected version 2, got %d", next.Version)
	}

	found, err := s.FindEmployeeByIdentifier(ctx, "A")
	if err != nil {
		t.Fatalf("FindEmployeeByIdentifier: %v", err)
	}
	if found.ID != "emp-a2" {
		t.Fatalf("expected reissued row, got %s", found.ID)
	}
	if _, err := s.FindEmployeeByID(ctx, "emp-a"); !errors.Is(err, directory.ErrEmployeeNotFound) {
		t.Fatalf("expected old row to be hidden, got %v", err)
	}
	if _, err := s.ReissueEmployee("missing", "x", baseTime); !errors.Is(err, directory.ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
}

func TestStore_AppendValidatesReferences(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, &ledger.Activity{EmployeeID: "nobody", GateID: "gate-1"}); !errors.Is(err, directory.ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
	if _, err := s.Append(ctx, &ledger.Activity{EmployeeID: "emp-a", GateID: "nowhere"}); !errors.Is(err, directory.ErrGateNotFound) {
		t.Fatalf("expected ErrGateNotFound, got %v", err)
	}
}

func TestStore_LatestPrefersLaterInsertOnTie(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Latest(ctx, "emp-a"); !errors.Is(err, ledger.ErrNoActivity) {
		t.Fatalf("expected ErrNoActivity, got %v", err)
	}

	appendActivity(t, s, "emp-a", ledger.TypeEntry, ledger.StatusGranted, baseTime)
	exit := appendActivity(t, s, "emp-a", ledger.TypeExit, ledger.StatusGranted, baseTime)

	latest, err := s.Latest(ctx, "emp-a")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != exit.ID {
		t.Fatalf("expected exit %s to be latest, got %s", exit.ID, latest.ID)
	}

	// 過去時刻で追記された記録は最新にならない
	appendActivity(t, s, "emp-a", ledger.TypeEntry, ledger.StatusGranted, baseTime.Add(-time.Hour))
	latest, _ = s.Latest(ctx, "emp-a")
	if latest.ID != exit.ID {
		t.Fatalf("expected exit to remain latest, got %s", latest.Type)
	}
}

func TestStore_ListAppliesFilter(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	operator := "usher-1"

	appendActivity(t, s, "emp-a", ledger.TypeEntry, ledger.StatusGranted, baseTime)
	if _, err := s.Append(ctx, &ledger.Activity{
		EmployeeID: "emp-b",
		GateID:     "gate-1",
		ScannerID:  &operator,
		Type:       ledger.TypeDenied,
		Status:     ledger.StatusDenied,
		ScannedAt:  baseTime.Add(time.Minute),
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	appendActivity(t, s, "emp-a", ledger.TypeExit, ledger.StatusGranted, baseTime.Add(2*time.Minute))

	all, err := s.List(ctx, ledger.Filter{Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Type != ledger.TypeExit {
		t.Fatalf("expected newest first, got %+v", all)
	}

	denied := ledger.StatusDenied
	filtered, err := s.List(ctx, ledger.Filter{ScannerID: operator, Status: &denied, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(filtered) != 1 || filtered[0].EmployeeID != "emp-b" {
		t.Fatalf("unexpected filtered result: %+v", filtered)
	}

	limited, _ := s.List(ctx, ledger.Filter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	recent, _ := s.RecentByEmployee(ctx, "emp-a", 1)
	if len(recent) != 1 || recent[0].Type != ledger.TypeExit {
		t.Fatalf("unexpected recent: %+v", recent)
	}
}

func TestStore_CountOnSiteExcludesBypass(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	appendActivity(t, s, "emp-a", ledger.TypeEntry, ledger.StatusGranted, baseTime)
	appendActivity(t, s, "emp-s", ledger.TypeEntry, ledger.StatusGranted, baseTime)
	appendActivity(t, s, "emp-b", ledger.TypeDenied, ledger.StatusDenied, baseTime)

	count, err := s.CountOnSite(ctx, "vendor-1")
	if err != nil {
		t.Fatalf("CountOnSite: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
}

func TestStore_CloseStaleEntriesIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	yesterday := baseTime.Add(-24 * time.Hour)
	today := ledger.StartOfDay(baseTime, time.UTC)

	appendActivity(t, s, "emp-a", ledger.TypeEntry, ledger.StatusGranted, yesterday)
	appendActivity(t, s, "emp-b", ledger.TypeEntry, ledger.StatusGranted, baseTime)
	appendActivity(t, s, "emp-s", ledger.TypeEntry, ledger.StatusGranted, yesterday)
	appendActivity(t, s, "emp-s", ledger.TypeExit, ledger.StatusGranted, yesterday.Add(time.Hour))

	in := ledger.CloseStaleInput{Before: today, At: baseTime}
	closed, err := s.CloseStaleEntries(ctx, in)
	if err != nil {
		t.Fatalf("CloseStaleEntries: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 closed, got %d", closed)
	}

	latest, _ := s.Latest(ctx, "emp-a")
	if latest.Type != ledger.TypeExit || latest.GateID != "gate-1" || !latest.ScannedAt.Equal(baseTime) {
		t.Fatalf("unexpected compensating record: %+v", latest)
	}

	before := len(s.Activities())
	closed, err = s.CloseStaleEntries(ctx, in)
	if err != nil {
		t.Fatalf("CloseStaleEntries (2nd): %v", err)
	}
	if closed != 0 || len(s.Activities()) != before {
		t.Fatalf("expected no additional rows, closed=%d rows=%d->%d", closed, before, len(s.Activities()))
	}

	if count, _ := s.CountOnSite(ctx, "vendor-1"); count != 1 {
		t.Fatalf("expected today's entry to remain on-site, got %d", count)
	}
}

func TestStore_LoadSeed(t *testing.T) {
	t.Parallel()

	f, err := os.Open("../../../../assets/seeds/demo.yaml")
	if err != nil {
		t.Fatalf("open seed: %v", err)
	}
	defer f.Close()

	s := NewStore()
	if err := s.LoadSeed(f); err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}

	emp, err := s.FindEmployeeByIdentifier(context.Background(), "BADGE-S")
	if err != nil {
		t.Fatalf("FindEmployeeByIdentifier: %v", err)
	}
	if !emp.BypassConcurrentLimit {
		t.Fatal("expected bypass flag from seed")
	}
	vendor, err := s.FindVendorByID(context.Background(), emp.VendorID)
	if err != nil {
		t.Fatalf("FindVendorByID: %v", err)
	}
	if vendor.AllowedInCount != 2 {
		t.Fatalf("expected cap 2, got %d", vendor.AllowedInCount)
	}
}

func TestStore_LoadSeedRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"status": `
vendors: [{id: v}]
employees: [{id: e, identifier: X, vendor_id: v, status: RETIRED}]
`,
		"date": `
vendors: [{id: v}]
employees: [{id: e, identifier: X, vendor_id: v, status: ACTIVE, allowed_dates: ["03/10/2026"]}]
`,
		"vendor": `
employees: [{id: e, identifier: X, vendor_id: v, status: ACTIVE}]
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if err := NewStore().LoadSeed(strings.NewReader(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

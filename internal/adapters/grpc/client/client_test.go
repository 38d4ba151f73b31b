package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/ogurasousui/site-access/internal/adapters/grpc/client"
	"github.com/ogurasousui/site-access/internal/adapters/grpc/handler"
	"github.com/ogurasousui/site-access/internal/adapters/grpc/wire"
	"github.com/ogurasousui/site-access/internal/adapters/repository/memory"
	"github.com/ogurasousui/site-access/internal/core/access"
	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/identity"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"github.com/ogurasousui/site-access/internal/core/occupancy"
	"github.com/ogurasousui/site-access/internal/core/scansession"
	"github.com/ogurasousui/site-access/internal/platform/auth"
	"github.com/ogurasousui/site-access/internal/platform/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const (
	testSecret = "test-secret"
	testIssuer = "site-access"
)

type fixture struct {
	conn  *grpc.ClientConn
	store *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.PutGate(directory.Gate{ID: "gate-1", Name: "North"})
	store.PutVendor(directory.Vendor{ID: "vendor-v", Name: "Acme", AllowedInCount: 1, GateIDs: []string{"gate-1"}})
	for _, id := range []string{"A", "B"} {
		if err := store.PutEmployee(directory.Employee{ID: "emp-" + id, Identifier: "BADGE-" + id, VendorID: "vendor-v", Status: directory.StatusActive}); err != nil {
			t.Fatalf("PutEmployee: %v", err)
		}
	}

	calc := occupancy.NewCalculator(store)
	svc := access.NewService(
		identity.NewResolver(store, store, nil, nil, time.UTC),
		admission.NewService(store, store, calc, store, nil, admission.Config{}),
		ledger.NewService(store, nil, nil, time.UTC),
		calc,
		store,
		nil,
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(server.Config{Logger: logger}, func(r grpc.ServiceRegistrar) {
		wire.RegisterAccessServer(r, handler.NewAccessGrpcHandler(svc))
	}, grpc.ChainUnaryInterceptor(
		server.AuthUnaryInterceptor(auth.NewVerifier(testSecret, testIssuer)),
		server.LoggingUnaryInterceptor(logger),
	))

	lis := bufconn.Listen(1024 * 1024)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})

	return &fixture{conn: conn, store: store}
}

func token(t *testing.T, id string, role auth.Role) string {
	t.Helper()
	tok, err := auth.Issue(testSecret, testIssuer, auth.Principal{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func TestAccessClient_ScanAndDecide(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := client.New(f.conn, token(t, "usher-1", auth.RoleUsher))
	ctx := context.Background()

	view, err := c.ScanIdentifier(ctx, identity.ResolveInput{Identifier: "BADGE-A", GateID: "gate-1"})
	if err != nil {
		t.Fatalf("ScanIdentifier: %v", err)
	}
	if view.Employee.ID != "emp-A" || view.Vendor == nil || view.Vendor.AllowedInCount != 1 {
		t.Fatalf("unexpected view: %+v", view)
	}

	recorded, err := c.RecordDecision(ctx, admission.DecisionInput{EmployeeID: "emp-A", GateID: "gate-1", Type: ledger.TypeEntry})
	if err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	if recorded.ScannerID == nil || *recorded.ScannerID != "usher-1" {
		t.Fatalf("expected operator from token, got %v", recorded.ScannerID)
	}

	_, err = c.RecordDecision(ctx, admission.DecisionInput{EmployeeID: "emp-B", GateID: "gate-1", Type: ledger.TypeEntry})
	var denied *admission.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != admission.ReasonCapacityReached || denied.Cap != 1 || denied.Occupancy != 1 {
		t.Fatalf("unexpected denial: %+v", denied)
	}

	occ, err := c.CurrentOccupancy(ctx, "vendor-v")
	if err != nil {
		t.Fatalf("CurrentOccupancy: %v", err)
	}
	if occ.Occupancy != 1 {
		t.Fatalf("expected occupancy 1, got %d", occ.Occupancy)
	}

	listed, err := c.ListRecentActivity(ctx, ledger.Filter{GateID: "gate-1"})
	if err != nil {
		t.Fatalf("ListRecentActivity: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != recorded.ID {
		t.Fatalf("unexpected activities: %+v", listed)
	}
}

func TestAccessClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := client.New(f.conn, "")
	ctx := context.Background()

	if _, err := c.ScanIdentifier(ctx, identity.ResolveInput{Identifier: "UNKNOWN", GateID: "gate-1"}); !errors.Is(err, directory.ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
	if _, err := c.RecordDecision(ctx, admission.DecisionInput{EmployeeID: "emp-A", GateID: "gate-x", Type: ledger.TypeExit}); !errors.Is(err, directory.ErrGateNotFound) {
		t.Fatalf("expected ErrGateNotFound, got %v", err)
	}
	if _, err := c.CurrentOccupancy(ctx, "missing"); !errors.Is(err, directory.ErrVendorNotFound) {
		t.Fatalf("expected ErrVendorNotFound, got %v", err)
	}
	if _, err := c.BulkCloseStaleEntries(ctx, nil); err == nil {
		t.Fatal("expected anonymous bulk close to be rejected")
	}

	bad := client.New(f.conn, "not-a-jwt")
	if _, err := bad.ScanIdentifier(ctx, identity.ResolveInput{Identifier: "BADGE-A"}); err == nil {
		t.Fatal("expected invalid token to be rejected")
	}
}

func TestAccessClient_BulkCloseAsAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := client.New(f.conn, token(t, "admin-1", auth.RoleAdmin))

	result, err := c.BulkCloseStaleEntries(context.Background(), nil)
	if err != nil {
		t.Fatalf("BulkCloseStaleEntries: %v", err)
	}
	if result.Count != 0 {
		t.Fatalf("expected nothing to close, got %d", result.Count)
	}
}

func TestAccessClient_DrivesScanSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := client.New(f.conn, token(t, "usher-1", auth.RoleUsher))
	session := scansession.New(c, scansession.Config{})
	ctx := context.Background()

	if err := session.SelectGate("gate-1"); err != nil {
		t.Fatalf("SelectGate: %v", err)
	}
	outcome, err := session.Scan(ctx, "BADGE-A")
	if err != nil || outcome != scansession.OutcomeResolved {
		t.Fatalf("Scan: outcome=%v err=%v", outcome, err)
	}
	if _, err := session.Decide(ctx, ledger.TypeEntry, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	outcome, err = session.Scan(ctx, "BADGE-A")
	if err != nil || outcome != scansession.OutcomeCooldown {
		t.Fatalf("expected cooldown, outcome=%v err=%v", outcome, err)
	}
	if got := len(f.store.Activities()); got != 1 {
		t.Fatalf("expected 1 activity, got %d", got)
	}
}

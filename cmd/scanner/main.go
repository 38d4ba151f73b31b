// scanner はゲート端末の操作を標準入力で再現するクライアントです。
// 1 行を 1 回のスキャンとして扱い、":" で始まる行はオペレーターの操作として解釈します。
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ogurasousui/site-access/internal/adapters/grpc/client"
	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"github.com/ogurasousui/site-access/internal/core/scansession"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const usage = `commands:
  <identifier>      scan a badge
  :entry            record ENTRY for the pending employee
  :exit             record EXIT for the pending employee
  :deny <reason>    record DENIED with a reason
  :cancel           discard the pending employee
  :gate <id>        select a gate
  :quit             exit`

func main() {
	var (
		addr     = pflag.String("addr", "localhost:50051", "AccessService address")
		token    = pflag.String("token", os.Getenv("SITEACCESS_TOKEN"), "bearer token of the operator")
		gate     = pflag.String("gate", "", "gate to select on start")
		cooldown = pflag.Duration("cooldown", scansession.DefaultCooldown, "ignore repeated scans of the same identifier for this long")
		timeout  = pflag.Duration("timeout", 5*time.Second, "timeout per request")
	)
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Error("failed to connect", slog.String("addr", *addr), slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	session := scansession.New(client.New(conn, *token), scansession.Config{Cooldown: *cooldown})
	if *gate != "" {
		if err := session.SelectGate(*gate); err != nil {
			logger.Error("failed to select gate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	t := &terminal{session: session, out: os.Stdout, timeout: *timeout}
	fmt.Fprintln(t.out, usage)
	if err := t.run(ctx, os.Stdin); err != nil {
		logger.Error("scanner stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

type terminal struct {
	session *scansession.Session
	out     io.Writer
	timeout time.Duration
}

var errQuit = errors.New("quit")

func (t *terminal) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := t.handle(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(t.out, "error: %s\n", describe(err))
		}
	}
	return scanner.Err()
}

func (t *terminal) handle(ctx context.Context, line string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if !strings.HasPrefix(line, ":") {
		outcome, err := t.session.Scan(ctx, line)
		if err != nil {
			return err
		}
		switch outcome {
		case scansession.OutcomeResolved:
			t.printPending()
		case scansession.OutcomeBusy:
			fmt.Fprintln(t.out, "ignored: decision pending")
		case scansession.OutcomeCooldown:
			fmt.Fprintln(t.out, "ignored: scanned recently")
		}
		return nil
	}

	command, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	switch command {
	case "entry":
		return t.decide(ctx, ledger.TypeEntry, "")
	case "exit":
		return t.decide(ctx, ledger.TypeExit, "")
	case "deny":
		return t.decide(ctx, ledger.TypeDenied, arg)
	case "cancel":
		t.session.Cancel()
		fmt.Fprintln(t.out, "cancelled")
		return nil
	case "gate":
		if err := t.session.SelectGate(arg); err != nil {
			return err
		}
		fmt.Fprintf(t.out, "gate %s selected\n", t.session.GateID())
		return nil
	case "quit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (t *terminal) decide(ctx context.Context, typ ledger.Type, reason string) error {
	recorded, err := t.session.Decide(ctx, typ, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "recorded %s/%s at %s\n", recorded.Type, recorded.Status, recorded.ScannedAt.Local().Format(time.TimeOnly))
	return nil
}

func (t *terminal) printPending() {
	view := t.session.Pending()
	if view == nil {
		return
	}
	fmt.Fprintf(t.out, "%s (%s) status=%s on_site=%t\n", view.Employee.Name, view.Employee.Identifier, view.Employee.Status, view.OnSite)
	if view.Vendor != nil {
		fmt.Fprintf(t.out, "  vendor %s cap=%d\n", view.Vendor.Name, view.Vendor.AllowedInCount)
	}
	for _, a := range view.Advisories {
		fmt.Fprintf(t.out, "  advisory: %s\n", a)
	}
	for _, a := range view.RecentActivities {
		fmt.Fprintf(t.out, "  %s %s/%s gate=%s\n", a.ScannedAt.Local().Format(time.DateTime), a.Type, a.Status, a.GateID)
	}
}

func describe(err error) string {
	var denied *admission.DeniedError
	var storage *admission.StorageError
	switch {
	case errors.As(err, &denied):
		if denied.Reason == admission.ReasonCapacityReached {
			return fmt.Sprintf("entry denied: vendor at capacity (%d/%d)", denied.Occupancy, denied.Cap)
		}
		return fmt.Sprintf("entry denied: %s", denied.Reason)
	case errors.As(err, &storage):
		return fmt.Sprintf("ledger unavailable, retry the decision: %v", storage.Err)
	default:
		return err.Error()
	}
}

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors_ObserveDecision(t *testing.T) {
	t.Parallel()

	c := New()
	c.ObserveDecision(ledger.TypeEntry, admission.OutcomeRecorded, "", 10*time.Millisecond)
	c.ObserveDecision(ledger.TypeEntry, admission.OutcomeDenied, admission.ReasonCapacityReached, time.Millisecond)
	c.ObserveDecision(ledger.TypeEntry, admission.OutcomeDenied, admission.ReasonCapacityReached, time.Millisecond)
	c.ObserveDecision(ledger.TypeExit, admission.OutcomeRecorded, "", time.Millisecond)

	if got := testutil.ToFloat64(c.decisions.WithLabelValues("ENTRY", "denied")); got != 2 {
		t.Fatalf("expected 2 denied entries, got %v", got)
	}
	if got := testutil.ToFloat64(c.denials.WithLabelValues("capacity_reached")); got != 2 {
		t.Fatalf("expected 2 capacity denials, got %v", got)
	}
	if got := testutil.CollectAndCount(c.latency); got != 2 {
		t.Fatalf("expected histogram series per type, got %d", got)
	}
}

func TestCollectors_ObserveBulkClose(t *testing.T) {
	t.Parallel()

	c := New()
	c.ObserveBulkClose(3)
	c.ObserveBulkClose(0)

	expected := `
# HELP siteaccess_bulk_close_exits_total Compensating exits appended by the stale entry sweep.
# TYPE siteaccess_bulk_close_exits_total counter
siteaccess_bulk_close_exits_total 3
# HELP siteaccess_bulk_close_runs_total Completed stale entry sweeps.
# TYPE siteaccess_bulk_close_runs_total counter
siteaccess_bulk_close_runs_total 2
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"siteaccess_bulk_close_exits_total", "siteaccess_bulk_close_runs_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

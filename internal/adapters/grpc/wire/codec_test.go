package wire

import (
	"testing"
	"time"

	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/identity"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestEmployeeView_AllowedDatesKeepCalendarDay(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	encoded, err := EncodeEmployeeView(&identity.EmployeeView{
		Employee: &directory.Employee{ID: "emp-1", Status: directory.StatusPending, AllowedDates: []time.Time{day}},
	})
	if err != nil {
		t.Fatalf("EncodeEmployeeView: %v", err)
	}

	got := encoded.GetFields()["employee"].GetStructValue().GetFields()["allowed_dates"].GetListValue().GetValues()
	if len(got) != 1 || got[0].GetStringValue() != "2026-03-10" {
		t.Fatalf("unexpected allowed_dates: %v", got)
	}

	view, err := DecodeEmployeeView(encoded)
	if err != nil {
		t.Fatalf("DecodeEmployeeView: %v", err)
	}
	if view.Vendor != nil {
		t.Errorf("expected no vendor, got %+v", view.Vendor)
	}
	if len(view.Employee.AllowedDates) != 1 || !view.Employee.AllowedDates[0].Equal(day) {
		t.Errorf("unexpected dates: %v", view.Employee.AllowedDates)
	}
	if view.LastActivity != nil {
		t.Errorf("expected no last activity")
	}
}

func TestDecodeEmployeeView_MissingEmployee(t *testing.T) {
	t.Parallel()

	if _, err := DecodeEmployeeView(&structpb.Struct{}); err == nil {
		t.Fatal("expected error for missing employee")
	}
}

func TestDecodeActivity_InvalidTimestamp(t *testing.T) {
	t.Parallel()

	s, err := structpb.NewStruct(map[string]any{"id": "a-1", "scanned_at": "not-a-time"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	if _, err := DecodeActivity(s); err == nil {
		t.Fatal("expected error for invalid scanned_at")
	}
}

func TestParseDecisionRequest_IgnoresOperator(t *testing.T) {
	t.Parallel()

	s, err := structpb.NewStruct(map[string]any{"employee_id": "emp-1", "gate_id": "gate-1", "type": "DENIED", "denial_reason": "no helmet", "operator_id": "spoofed"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}

	in := ParseDecisionRequest(s)
	if in.OperatorID != nil {
		t.Errorf("operator must not be read from the request")
	}
	if in.DenialReason != "no helmet" || in.Type != "DENIED" {
		t.Errorf("unexpected input: %+v", in)
	}
}

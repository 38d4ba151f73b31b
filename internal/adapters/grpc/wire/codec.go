package wire

import (
	"fmt"
	"time"

	"github.com/ogurasousui/site-access/internal/core/access"
	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/directory"
	"github.com/ogurasousui/site-access/internal/core/identity"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	timestampLayout = time.RFC3339Nano
	dateLayout      = "2006-01-02"
)

// ScanRequest は ScanIdentifier の要求を組み立てます。
func ScanRequest(in identity.ResolveInput) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"identifier": in.Identifier,
		"gate_id":    in.GateID,
	})
}

// ParseScanRequest は ScanIdentifier の要求を読み取ります。
func ParseScanRequest(req *structpb.Struct) identity.ResolveInput {
	return identity.ResolveInput{
		Identifier: stringField(req, "identifier"),
		GateID:     stringField(req, "gate_id"),
	}
}

// DecisionRequest は RecordDecision の要求を組み立てます。オペレーターは認証情報から決まるため含めません。
func DecisionRequest(in admission.DecisionInput) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"employee_id":   in.EmployeeID,
		"gate_id":       in.GateID,
		"type":          string(in.Type),
		"denial_reason": in.DenialReason,
	})
}

// ParseDecisionRequest は RecordDecision の要求を読み取ります。
func ParseDecisionRequest(req *structpb.Struct) admission.DecisionInput {
	return admission.DecisionInput{
		EmployeeID:   stringField(req, "employee_id"),
		GateID:       stringField(req, "gate_id"),
		Type:         ledger.Type(stringField(req, "type")),
		DenialReason: stringField(req, "denial_reason"),
	}
}

// ListRequest は ListRecentActivity の要求を組み立てます。
func ListRequest(f ledger.Filter) (*structpb.Struct, error) {
	m := map[string]any{
		"gate_id":    f.GateID,
		"scanner_id": f.ScannerID,
		"limit":      f.Limit,
	}
	if f.Status != nil {
		m["status"] = string(*f.Status)
	}
	if f.Type != nil {
		m["type"] = string(*f.Type)
	}
	if f.Since != nil {
		m["since"] = f.Since.UTC().Format(timestampLayout)
	}
	return structpb.NewStruct(m)
}

// ParseListRequest は ListRecentActivity の要求を読み取ります。
func ParseListRequest(req *structpb.Struct) (ledger.Filter, error) {
	f := ledger.Filter{
		GateID:    stringField(req, "gate_id"),
		ScannerID: stringField(req, "scanner_id"),
		Limit:     intField(req, "limit"),
	}
	if v := stringField(req, "status"); v != "" {
		s := ledger.Status(v)
		f.Status = &s
	}
	if v := stringField(req, "type"); v != "" {
		t := ledger.Type(v)
		f.Type = &t
	}
	if v := stringField(req, "since"); v != "" {
		since, err := time.Parse(timestampLayout, v)
		if err != nil {
			return ledger.Filter{}, fmt.Errorf("since: %w", err)
		}
		f.Since = &since
	}
	return f, nil
}

// OccupancyRequest は CurrentOccupancy の要求を組み立てます。
func OccupancyRequest(vendorID string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"vendor_id": vendorID})
}

// ParseOccupancyRequest は CurrentOccupancy の要求から業者 ID を読み取ります。
func ParseOccupancyRequest(req *structpb.Struct) string {
	return stringField(req, "vendor_id")
}

// EncodeActivity は記録を応答に変換します。
func EncodeActivity(a *ledger.Activity) (*structpb.Struct, error) {
	return structpb.NewStruct(activityMap(a))
}

// DecodeActivity は応答を記録に変換します。
func DecodeActivity(s *structpb.Struct) (*ledger.Activity, error) {
	return activityFromMap(s.AsMap())
}

// EncodeActivities は記録の一覧を応答に変換します。
func EncodeActivities(activities []*ledger.Activity) (*structpb.Struct, error) {
	items := make([]any, 0, len(activities))
	for _, a := range activities {
		items = append(items, activityMap(a))
	}
	return structpb.NewStruct(map[string]any{"activities": items})
}

// DecodeActivities は応答を記録の一覧に変換します。
func DecodeActivities(s *structpb.Struct) ([]*ledger.Activity, error) {
	raw, _ := s.AsMap()["activities"].([]any)
	out := make([]*ledger.Activity, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("activities[%d]: unexpected %T", i, item)
		}
		a, err := activityFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("activities[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// EncodeEmployeeView は従業員の表示情報を応答に変換します。
func EncodeEmployeeView(v *identity.EmployeeView) (*structpb.Struct, error) {
	e := v.Employee
	employee := map[string]any{
		"id":                      e.ID,
		"identifier":              e.Identifier,
		"version":                 e.Version,
		"vendor_id":               e.VendorID,
		"name":                    e.Name,
		"status":                  string(e.Status),
		"bypass_concurrent_limit": e.BypassConcurrentLimit,
		"allowed_dates":           dateList(e.AllowedDates),
	}

	recent := make([]any, 0, len(v.RecentActivities))
	for _, a := range v.RecentActivities {
		recent = append(recent, activityMap(a))
	}
	advisories := make([]any, 0, len(v.Advisories))
	for _, a := range v.Advisories {
		advisories = append(advisories, string(a))
	}

	m := map[string]any{
		"employee":           employee,
		"effective_gate_ids": stringList(v.EffectiveGateIDs),
		"effective_zone_ids": stringList(v.EffectiveZoneIDs),
		"recent_activities":  recent,
		"on_site":            v.OnSite,
		"advisories":         advisories,
	}
	if v.Vendor != nil {
		m["vendor"] = map[string]any{
			"id":                  v.Vendor.ID,
			"name":                v.Vendor.Name,
			"allowed_staff_count": v.Vendor.AllowedStaffCount,
			"allowed_in_count":    v.Vendor.AllowedInCount,
		}
	}
	return structpb.NewStruct(m)
}

// DecodeEmployeeView は応答を従業員の表示情報に変換します。
func DecodeEmployeeView(s *structpb.Struct) (*identity.EmployeeView, error) {
	m := s.AsMap()

	em, ok := m["employee"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("employee: missing")
	}
	dates, err := parseDates(em["allowed_dates"])
	if err != nil {
		return nil, fmt.Errorf("employee.allowed_dates: %w", err)
	}
	view := &identity.EmployeeView{
		Employee: &directory.Employee{
			ID:                    str(em["id"]),
			Identifier:            str(em["identifier"]),
			Version:               num(em["version"]),
			VendorID:              str(em["vendor_id"]),
			Name:                  str(em["name"]),
			Status:                directory.Status(str(em["status"])),
			BypassConcurrentLimit: em["bypass_concurrent_limit"] == true,
			AllowedDates:          dates,
		},
		EffectiveGateIDs: strs(m["effective_gate_ids"]),
		EffectiveZoneIDs: strs(m["effective_zone_ids"]),
		OnSite:           m["on_site"] == true,
	}

	if vm, ok := m["vendor"].(map[string]any); ok {
		view.Vendor = &directory.Vendor{
			ID:                str(vm["id"]),
			Name:              str(vm["name"]),
			AllowedStaffCount: num(vm["allowed_staff_count"]),
			AllowedInCount:    num(vm["allowed_in_count"]),
		}
	}

	recent, _ := m["recent_activities"].([]any)
	for i, item := range recent {
		am, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("recent_activities[%d]: unexpected %T", i, item)
		}
		a, err := activityFromMap(am)
		if err != nil {
			return nil, fmt.Errorf("recent_activities[%d]: %w", i, err)
		}
		view.RecentActivities = append(view.RecentActivities, a)
	}
	if len(view.RecentActivities) > 0 {
		view.LastActivity = view.RecentActivities[0]
	}

	for _, a := range strs(m["advisories"]) {
		view.Advisories = append(view.Advisories, identity.Advisory(a))
	}
	return view, nil
}

// EncodeBulkClose は一括退場の結果を応答に変換します。
func EncodeBulkClose(r *ledger.BulkCloseResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"count": r.Count})
}

// DecodeBulkClose は応答を一括退場の結果に変換します。
func DecodeBulkClose(s *structpb.Struct) *ledger.BulkCloseResult {
	return &ledger.BulkCloseResult{Count: intField(s, "count")}
}

// EncodeOccupancy は在場状況を応答に変換します。
func EncodeOccupancy(v *access.OccupancyView) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"vendor_id":        v.VendorID,
		"occupancy":        v.Occupancy,
		"allowed_in_count": v.AllowedInCount,
	})
}

// DecodeOccupancy は応答を在場状況に変換します。
func DecodeOccupancy(s *structpb.Struct) *access.OccupancyView {
	return &access.OccupancyView{
		VendorID:       stringField(s, "vendor_id"),
		Occupancy:      intField(s, "occupancy"),
		AllowedInCount: intField(s, "allowed_in_count"),
	}
}

func activityMap(a *ledger.Activity) map[string]any {
	m := map[string]any{
		"id":          a.ID,
		"employee_id": a.EmployeeID,
		"gate_id":     a.GateID,
		"type":        string(a.Type),
		"status":      string(a.Status),
		"scanned_at":  a.ScannedAt.UTC().Format(timestampLayout),
	}
	if a.ScannerID != nil {
		m["scanner_id"] = *a.ScannerID
	}
	if a.DenialReason != nil {
		m["denial_reason"] = *a.DenialReason
	}
	return m
}

func activityFromMap(m map[string]any) (*ledger.Activity, error) {
	scannedAt, err := time.Parse(timestampLayout, str(m["scanned_at"]))
	if err != nil {
		return nil, fmt.Errorf("scanned_at: %w", err)
	}
	a := &ledger.Activity{
		ID:         str(m["id"]),
		EmployeeID: str(m["employee_id"]),
		GateID:     str(m["gate_id"]),
		Type:       ledger.Type(str(m["type"])),
		Status:     ledger.Status(str(m["status"])),
		ScannedAt:  scannedAt,
	}
	if v, ok := m["scanner_id"].(string); ok {
		a.ScannerID = &v
	}
	if v, ok := m["denial_reason"].(string); ok {
		a.DenialReason = &v
	}
	return a, nil
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func intField(s *structpb.Struct, key string) int {
	if s == nil {
		return 0
	}
	return int(s.GetFields()[key].GetNumberValue())
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func strs(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringList(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func dateList(values []time.Time) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v.Format(dateLayout))
	}
	return out
}

func parseDates(v any) ([]time.Time, error) {
	var out []time.Time
	for _, raw := range strs(v) {
		d, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
